package usecase_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/repository"
	"github.com/bridgezone/market-api/internal/usecase"
	"github.com/golang-jwt/jwt/v5"
)

// ---- fakes ----

type fakeUserRepo struct {
	create                      func(ctx context.Context, input repository.CreateUserInput) (*domain.User, error)
	findByID                    func(ctx context.Context, id string) (*domain.User, error)
	findByEmail                 func(ctx context.Context, email string) (*domain.User, error)
	getLimits                   func(ctx context.Context, userID string) (*domain.UserLimits, error)
	applyTier                   func(ctx context.Context, userID string, tier domain.Tier) error
	resetExpiredPurchaseWindows func(ctx context.Context, cutoff time.Time) (int, error)
}

func (r *fakeUserRepo) Create(ctx context.Context, input repository.CreateUserInput) (*domain.User, error) {
	return r.create(ctx, input)
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findByID(ctx, id)
}

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findByEmail(ctx, email)
}

func (r *fakeUserRepo) GetLimits(ctx context.Context, userID string) (*domain.UserLimits, error) {
	return r.getLimits(ctx, userID)
}

func (r *fakeUserRepo) ApplyTier(ctx context.Context, userID string, tier domain.Tier) error {
	return r.applyTier(ctx, userID, tier)
}

func (r *fakeUserRepo) ResetExpiredPurchaseWindows(ctx context.Context, cutoff time.Time) (int, error) {
	return r.resetExpiredPurchaseWindows(ctx, cutoff)
}

type fakeCodeRepo struct {
	findInvitation        func(ctx context.Context, code string) (*domain.InvitationCode, error)
	redeemInvitation      func(ctx context.Context, code string) (*domain.User, error)
	countRecentLoginCodes func(ctx context.Context, email string, since time.Time) (int, error)
	createLoginCode       func(ctx context.Context, lc *domain.LoginCode) error
	deleteLoginCode       func(ctx context.Context, id string) error
	releaseLoginCode      func(ctx context.Context, id string) error
	claimLoginCode        func(ctx context.Context, email, codeHash string) (*domain.LoginCode, error)
	purgeExpired          func(ctx context.Context, cutoff time.Time) (int, error)
}

func (r *fakeCodeRepo) FindInvitation(ctx context.Context, code string) (*domain.InvitationCode, error) {
	return r.findInvitation(ctx, code)
}

func (r *fakeCodeRepo) RedeemInvitation(ctx context.Context, code string) (*domain.User, error) {
	return r.redeemInvitation(ctx, code)
}

func (r *fakeCodeRepo) CountRecentLoginCodes(ctx context.Context, email string, since time.Time) (int, error) {
	return r.countRecentLoginCodes(ctx, email, since)
}

func (r *fakeCodeRepo) CreateLoginCode(ctx context.Context, lc *domain.LoginCode) error {
	return r.createLoginCode(ctx, lc)
}

func (r *fakeCodeRepo) DeleteLoginCode(ctx context.Context, id string) error {
	return r.deleteLoginCode(ctx, id)
}

func (r *fakeCodeRepo) ReleaseLoginCode(ctx context.Context, id string) error {
	return r.releaseLoginCode(ctx, id)
}

func (r *fakeCodeRepo) ClaimLoginCode(ctx context.Context, email, codeHash string) (*domain.LoginCode, error) {
	return r.claimLoginCode(ctx, email, codeHash)
}

func (r *fakeCodeRepo) PurgeExpiredLoginCodes(ctx context.Context, cutoff time.Time) (int, error) {
	return r.purgeExpired(ctx, cutoff)
}

type fakeEmailSender struct {
	send func(ctx context.Context, to, subject, body string) error
}

func (s *fakeEmailSender) Send(ctx context.Context, to, subject, body string) error {
	return s.send(ctx, to, subject, body)
}

// ---- helpers ----

const testJWTKey = "test-jwt-secret-at-least-32-chars!!"

func newAuth(users *fakeUserRepo, codes *fakeCodeRepo, sender *fakeEmailSender) *usecase.AuthUsecase {
	return usecase.NewAuthUsecase(users, codes, sender, []byte(testJWTKey))
}

var testUser = &domain.User{ID: "user-1", Email: "test@example.com", Tier: domain.TierFree}

// ---- SignUp ----

func TestSignUp_WeakPassword_Rejected(t *testing.T) {
	auth := newAuth(&fakeUserRepo{}, &fakeCodeRepo{}, &fakeEmailSender{})

	_, err := auth.SignUp(context.Background(), usecase.SignUpInput{
		Email:    "test@example.com",
		Password: "short",
	})
	if !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("err = %v, want ErrWeakPassword", err)
	}
}

func TestSignUp_CreatesInactiveFreeUser(t *testing.T) {
	var captured repository.CreateUserInput
	users := &fakeUserRepo{
		create: func(_ context.Context, input repository.CreateUserInput) (*domain.User, error) {
			captured = input
			return testUser, nil
		},
	}

	session, err := newAuth(users, &fakeCodeRepo{}, &fakeEmailSender{}).SignUp(context.Background(), usecase.SignUpInput{
		Email:    "Test@Example.COM ",
		Password: "long-enough",
		Name:     "Tester",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Token == "" {
		t.Error("expected a session token")
	}
	if captured.Email != "test@example.com" {
		t.Errorf("email = %q, want normalized lowercase", captured.Email)
	}
	if captured.Tier != domain.TierFree {
		t.Errorf("tier = %q, want free", captured.Tier)
	}
	if captured.Status != domain.AccountInactive {
		t.Errorf("status = %q, want inactive", captured.Status)
	}
	if captured.PasswordHash == nil || *captured.PasswordHash == "long-enough" {
		t.Error("password must be stored hashed")
	}
}

func TestSignUp_DuplicateEmail_Propagated(t *testing.T) {
	users := &fakeUserRepo{
		create: func(_ context.Context, _ repository.CreateUserInput) (*domain.User, error) {
			return nil, domain.ErrDuplicateEmail
		},
	}

	_, err := newAuth(users, &fakeCodeRepo{}, &fakeEmailSender{}).SignUp(context.Background(), usecase.SignUpInput{
		Email:    "dup@example.com",
		Password: "long-enough",
	})
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
}

// ---- SignIn ----

func TestSignIn_UnknownEmail_SameErrorAsWrongPassword(t *testing.T) {
	users := &fakeUserRepo{
		findByEmail: func(_ context.Context, _ string) (*domain.User, error) {
			return nil, domain.ErrUserNotFound
		},
	}

	_, err := newAuth(users, &fakeCodeRepo{}, &fakeEmailSender{}).SignIn(context.Background(), "nobody@example.com", "whatever")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestSignIn_PasswordlessAccount_InvalidCredentials(t *testing.T) {
	users := &fakeUserRepo{
		findByEmail: func(_ context.Context, _ string) (*domain.User, error) {
			return &domain.User{ID: "u1", Email: "invited@example.com", PasswordHash: nil}, nil
		},
	}

	_, err := newAuth(users, &fakeCodeRepo{}, &fakeEmailSender{}).SignIn(context.Background(), "invited@example.com", "anything")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

// ---- ValidateInvitation ----

func TestValidateInvitation_UnknownCode_InvalidButNoError(t *testing.T) {
	codes := &fakeCodeRepo{
		findInvitation: func(_ context.Context, _ string) (*domain.InvitationCode, error) {
			return nil, domain.ErrInvalidCode
		},
	}

	preview, err := newAuth(&fakeUserRepo{}, codes, &fakeEmailSender{}).ValidateInvitation(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preview.Valid {
		t.Error("unknown code must not validate")
	}
}

func TestValidateInvitation_NormalizesCode(t *testing.T) {
	var captured string
	codes := &fakeCodeRepo{
		findInvitation: func(_ context.Context, code string) (*domain.InvitationCode, error) {
			captured = code
			return &domain.InvitationCode{Code: code, Tier: domain.TierEnterprise, MaxUses: domain.Unlimited}, nil
		},
	}

	preview, err := newAuth(&fakeUserRepo{}, codes, &fakeEmailSender{}).ValidateInvitation(context.Background(), "  astero1 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured != "ASTERO1" {
		t.Errorf("lookup used %q, want uppercased trimmed code", captured)
	}
	if !preview.Valid || preview.Tier != domain.TierEnterprise {
		t.Errorf("preview = %+v, want valid enterprise", preview)
	}
}

func TestValidateInvitation_Exhausted_Invalid(t *testing.T) {
	codes := &fakeCodeRepo{
		findInvitation: func(_ context.Context, code string) (*domain.InvitationCode, error) {
			return &domain.InvitationCode{Code: code, Tier: domain.TierPremium, MaxUses: 1, Uses: 1}, nil
		},
	}

	preview, err := newAuth(&fakeUserRepo{}, codes, &fakeEmailSender{}).ValidateInvitation(context.Background(), "USED1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preview.Valid {
		t.Error("exhausted code must not validate")
	}
}

// ---- RequestLoginCode ----

func TestRequestLoginCode_StoresHashOfEmailedCode(t *testing.T) {
	var capturedHash, capturedBody string
	codes := &fakeCodeRepo{
		countRecentLoginCodes: func(_ context.Context, _ string, _ time.Time) (int, error) { return 0, nil },
		createLoginCode: func(_ context.Context, lc *domain.LoginCode) error {
			capturedHash = lc.CodeHash
			return nil
		},
	}
	sender := &fakeEmailSender{
		send: func(_ context.Context, _, _, body string) error {
			capturedBody = body
			return nil
		},
	}

	expiresIn, err := newAuth(&fakeUserRepo{}, codes, sender).RequestLoginCode(
		context.Background(), "test@example.com", "127.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expiresIn != domain.LoginCodeTTL {
		t.Errorf("expiresIn = %s, want %s", expiresIn, domain.LoginCodeTTL)
	}

	// The emailed body embeds the 6-digit code inside <h2> tags.
	code := extractCode(t, capturedBody)
	wantHash := fmt.Sprintf("%x", sha256.Sum256([]byte(code)))
	if capturedHash != wantHash {
		t.Errorf("stored hash %q != SHA-256 of emailed code %q", capturedHash, code)
	}
}

func TestRequestLoginCode_SixthRequestInWindow_RateLimited(t *testing.T) {
	codes := &fakeCodeRepo{
		countRecentLoginCodes: func(_ context.Context, _ string, _ time.Time) (int, error) {
			return domain.LoginCodeMaxRequests, nil
		},
	}

	_, err := newAuth(&fakeUserRepo{}, codes, &fakeEmailSender{}).RequestLoginCode(
		context.Background(), "test@example.com", "127.0.0.1", "test-agent")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestRequestLoginCode_EmailFailure_RollsBackCode(t *testing.T) {
	deleted := false
	codes := &fakeCodeRepo{
		countRecentLoginCodes: func(_ context.Context, _ string, _ time.Time) (int, error) { return 0, nil },
		createLoginCode: func(_ context.Context, lc *domain.LoginCode) error {
			lc.ID = "code-1"
			return nil
		},
		deleteLoginCode: func(_ context.Context, id string) error {
			if id != "code-1" {
				t.Errorf("deleted id = %q, want code-1", id)
			}
			deleted = true
			return nil
		},
	}
	sender := &fakeEmailSender{
		send: func(_ context.Context, _, _, _ string) error {
			return errors.New("provider down")
		},
	}

	_, err := newAuth(&fakeUserRepo{}, codes, sender).RequestLoginCode(
		context.Background(), "test@example.com", "127.0.0.1", "test-agent")
	if !errors.Is(err, domain.ErrEmailDelivery) {
		t.Fatalf("err = %v, want ErrEmailDelivery", err)
	}
	if !deleted {
		t.Error("failed delivery must roll back the stored code")
	}
}

// ---- VerifyLoginCode ----

func TestVerifyLoginCode_InvalidCode_Rejected(t *testing.T) {
	codes := &fakeCodeRepo{
		claimLoginCode: func(_ context.Context, _, _ string) (*domain.LoginCode, error) {
			return nil, domain.ErrInvalidOrExpiredCode
		},
	}

	_, err := newAuth(&fakeUserRepo{}, codes, &fakeEmailSender{}).VerifyLoginCode(
		context.Background(), "test@example.com", "123456")
	if !errors.Is(err, domain.ErrInvalidOrExpiredCode) {
		t.Fatalf("err = %v, want ErrInvalidOrExpiredCode", err)
	}
}

func TestVerifyLoginCode_FirstTimeEmail_ProvisionsFreeAccount(t *testing.T) {
	codes := &fakeCodeRepo{
		claimLoginCode: func(_ context.Context, email, codeHash string) (*domain.LoginCode, error) {
			wantHash := fmt.Sprintf("%x", sha256.Sum256([]byte("123456")))
			if codeHash != wantHash {
				t.Errorf("claim used hash %q, want SHA-256 of submitted code", codeHash)
			}
			return &domain.LoginCode{ID: "code-1", Email: email}, nil
		},
	}

	var created bool
	users := &fakeUserRepo{
		findByEmail: func(_ context.Context, _ string) (*domain.User, error) {
			return nil, domain.ErrUserNotFound
		},
		create: func(_ context.Context, input repository.CreateUserInput) (*domain.User, error) {
			created = true
			if input.Tier != domain.TierFree {
				t.Errorf("tier = %q, want free", input.Tier)
			}
			if input.PasswordHash != nil {
				t.Error("code-provisioned account must be passwordless")
			}
			return &domain.User{ID: "user-2", Email: input.Email, Tier: input.Tier}, nil
		},
	}

	session, err := newAuth(users, codes, &fakeEmailSender{}).VerifyLoginCode(
		context.Background(), "new@example.com", "123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("first-time email must provision an account")
	}
	if session.User.ID != "user-2" {
		t.Errorf("user id = %q, want user-2", session.User.ID)
	}
}

func TestVerifyLoginCode_ProvisioningFailure_DoesNotBurnCode(t *testing.T) {
	used := false
	codes := &fakeCodeRepo{
		claimLoginCode: func(_ context.Context, email, _ string) (*domain.LoginCode, error) {
			if used {
				return nil, domain.ErrInvalidOrExpiredCode
			}
			used = true
			return &domain.LoginCode{ID: "code-1", Email: email}, nil
		},
		releaseLoginCode: func(_ context.Context, id string) error {
			if id != "code-1" {
				t.Errorf("released id = %q, want code-1", id)
			}
			used = false
			return nil
		},
	}

	createCalls := 0
	users := &fakeUserRepo{
		findByEmail: func(_ context.Context, _ string) (*domain.User, error) {
			return nil, domain.ErrUserNotFound
		},
		create: func(_ context.Context, input repository.CreateUserInput) (*domain.User, error) {
			createCalls++
			if createCalls == 1 {
				return nil, errors.New("db connection reset")
			}
			return &domain.User{ID: "user-4", Email: input.Email, Tier: input.Tier}, nil
		},
	}
	auth := newAuth(users, codes, &fakeEmailSender{})

	_, err := auth.VerifyLoginCode(context.Background(), "new@example.com", "123456")
	if err == nil {
		t.Fatal("expected the first verify to fail")
	}

	// The same code must still work: the failed attempt handed the claim back.
	session, err := auth.VerifyLoginCode(context.Background(), "new@example.com", "123456")
	if err != nil {
		t.Fatalf("retry with the same code failed: %v", err)
	}
	if session.User.ID != "user-4" {
		t.Errorf("user id = %q, want user-4", session.User.ID)
	}
}

// ---- session token ----

func TestSession_TokenCarriesUserClaims(t *testing.T) {
	users := &fakeUserRepo{
		findByEmail: func(_ context.Context, _ string) (*domain.User, error) {
			return nil, domain.ErrUserNotFound
		},
		create: func(_ context.Context, input repository.CreateUserInput) (*domain.User, error) {
			return &domain.User{ID: "user-3", Email: input.Email, Tier: domain.TierFree}, nil
		},
	}
	codes := &fakeCodeRepo{
		claimLoginCode: func(_ context.Context, email, _ string) (*domain.LoginCode, error) {
			return &domain.LoginCode{ID: "code-1", Email: email}, nil
		},
	}

	session, err := newAuth(users, codes, &fakeEmailSender{}).VerifyLoginCode(
		context.Background(), "claims@example.com", "123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, err := jwt.Parse(session.Token, func(t *jwt.Token) (any, error) {
		return []byte(testJWTKey), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("token does not parse: %v", err)
	}
	claims := token.Claims.(jwt.MapClaims)
	if claims["sub"] != "user-3" {
		t.Errorf("sub = %v, want user-3", claims["sub"])
	}
	if claims["tier"] != "free" {
		t.Errorf("tier = %v, want free", claims["tier"])
	}
}

// extractCode pulls the 6-digit code out of the rendered email body.
func extractCode(t *testing.T, body string) string {
	t.Helper()
	idx := strings.Index(body, "<h2>")
	if idx == -1 || len(body) < idx+4+6 {
		t.Fatalf("email body does not embed a code: %q", body)
	}
	return body[idx+4 : idx+4+6]
}
