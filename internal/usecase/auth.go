package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/email"
	"github.com/bridgezone/market-api/internal/metrics"
	"github.com/bridgezone/market-api/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultJWTTTL     = 24 * time.Hour
	minPasswordLength = 6
)

// Session is the definitive result of a sign-in: the caller gets a token and
// the resolved user, or an error. Nothing is reported as succeeded while a
// provider call is still in flight.
type Session struct {
	Token string
	User  *domain.User
}

type AuthUsecase struct {
	users  repository.UserRepository
	codes  repository.CodeRepository
	email  email.Sender
	jwtKey []byte
	jwtTTL time.Duration
}

func NewAuthUsecase(users repository.UserRepository, codes repository.CodeRepository, emailSender email.Sender, jwtKey []byte) *AuthUsecase {
	return &AuthUsecase{
		users:  users,
		codes:  codes,
		email:  emailSender,
		jwtKey: jwtKey,
		jwtTTL: defaultJWTTTL,
	}
}

type SignUpInput struct {
	Email       string
	Password    string
	Name        string
	CompanyName string
}

func (u *AuthUsecase) SignUp(ctx context.Context, input SignUpInput) (*Session, error) {
	if len(input.Password) < minPasswordLength {
		return nil, domain.ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	hashStr := string(hash)

	user, err := u.users.Create(ctx, repository.CreateUserInput{
		Email:              strings.ToLower(strings.TrimSpace(input.Email)),
		Name:               input.Name,
		CompanyName:        input.CompanyName,
		PasswordHash:       &hashStr,
		Tier:               domain.TierFree,
		Status:             domain.AccountInactive,
		VerificationStatus: domain.VerificationPending,
	})
	if err != nil {
		return nil, err
	}

	return u.issueSession(user)
}

func (u *AuthUsecase) SignIn(ctx context.Context, emailAddr, password string) (*Session, error) {
	user, err := u.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	// Accounts provisioned via invitation may have no password yet. Report
	// the same error as a wrong password so the two are indistinguishable.
	if user.PasswordHash == nil {
		return nil, domain.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}

	return u.issueSession(user)
}

// InvitationPreview is the non-consuming validation result shown before the
// user commits to redeeming.
type InvitationPreview struct {
	Valid   bool
	Message string
	Tier    domain.Tier
}

func (u *AuthUsecase) ValidateInvitation(ctx context.Context, code string) (*InvitationPreview, error) {
	inv, err := u.codes.FindInvitation(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCode) {
			return &InvitationPreview{Valid: false, Message: "This invitation code is not recognized."}, nil
		}
		return nil, fmt.Errorf("find invitation: %w", err)
	}

	switch {
	case inv.Expired(time.Now()):
		return &InvitationPreview{Valid: false, Message: "This invitation code has expired."}, nil
	case inv.Exhausted():
		return &InvitationPreview{Valid: false, Message: "This invitation code has already been used."}, nil
	default:
		return &InvitationPreview{
			Valid:   true,
			Message: fmt.Sprintf("Valid invitation — grants %s access, no email verification required.", inv.Tier),
			Tier:    inv.Tier,
		}, nil
	}
}

// RedeemInvitation signs into the code's pre-provisioned account. The code
// is consumed in the same transaction that provisions the account, so a
// failed redemption never burns a use.
func (u *AuthUsecase) RedeemInvitation(ctx context.Context, code string) (*Session, error) {
	user, err := u.codes.RedeemInvitation(ctx, NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	return u.issueSession(user)
}

// RequestLoginCode issues a one-time 6-digit code. The per-email window is
// counted in the database so the limit holds across instances.
func (u *AuthUsecase) RequestLoginCode(ctx context.Context, emailAddr, ip, userAgent string) (expiresIn time.Duration, err error) {
	since := time.Now().Add(-domain.LoginCodeWindow)
	recent, err := u.codes.CountRecentLoginCodes(ctx, emailAddr, since)
	if err != nil {
		return 0, fmt.Errorf("count recent codes: %w", err)
	}
	if recent >= domain.LoginCodeMaxRequests {
		metrics.LoginCodeRejectionsTotal.WithLabelValues("rate_limited").Inc()
		return 0, domain.ErrRateLimited
	}

	code, err := generateNumericCode()
	if err != nil {
		return 0, fmt.Errorf("generate code: %w", err)
	}

	lc := &domain.LoginCode{
		Email:     emailAddr,
		CodeHash:  hashCode(code),
		ExpiresAt: time.Now().Add(domain.LoginCodeTTL),
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := u.codes.CreateLoginCode(ctx, lc); err != nil {
		return 0, fmt.Errorf("store login code: %w", err)
	}

	subject, body := email.LoginCodeBody(code, domain.LoginCodeTTL)
	if err := u.email.Send(ctx, emailAddr, subject, body); err != nil {
		metrics.EmailsSentTotal.WithLabelValues("error").Inc()
		// Roll back the code so a delivery outage doesn't eat the window.
		if delErr := u.codes.DeleteLoginCode(ctx, lc.ID); delErr != nil {
			return 0, fmt.Errorf("roll back login code %s: %w", lc.ID, delErr)
		}
		return 0, fmt.Errorf("%w: %s", domain.ErrEmailDelivery, err)
	}

	metrics.EmailsSentTotal.WithLabelValues("ok").Inc()
	metrics.LoginCodesIssuedTotal.Inc()
	return domain.LoginCodeTTL, nil
}

// VerifyLoginCode claims the code (exactly once) and signs the user in,
// provisioning a fresh free-tier account for first-time emails.
func (u *AuthUsecase) VerifyLoginCode(ctx context.Context, emailAddr, code string) (*Session, error) {
	lc, err := u.codes.ClaimLoginCode(ctx, emailAddr, hashCode(code))
	if err != nil {
		return nil, err
	}

	user, err := u.users.FindByEmail(ctx, emailAddr)
	if errors.Is(err, domain.ErrUserNotFound) {
		user, err = u.users.Create(ctx, repository.CreateUserInput{
			Email:              strings.ToLower(strings.TrimSpace(emailAddr)),
			Tier:               domain.TierFree,
			Status:             domain.AccountInactive,
			VerificationStatus: domain.VerificationPending,
		})
	}
	if err != nil {
		// Hand the claim back so a transient provisioning failure doesn't
		// burn a code that was never signed in with.
		if relErr := u.codes.ReleaseLoginCode(ctx, lc.ID); relErr != nil {
			return nil, fmt.Errorf("release login code %s: %w", lc.ID, relErr)
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	return u.issueSession(user)
}

func (u *AuthUsecase) issueSession(user *domain.User) (*Session, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"tier":  string(user.Tier),
		"iat":   now.Unix(),
		"exp":   now.Add(u.jwtTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(u.jwtKey)
	if err != nil {
		return nil, fmt.Errorf("sign jwt: %w", err)
	}
	return &Session{Token: signed, User: user}, nil
}

// NormalizeCode uppercases and trims an invitation code the way it is shown
// in marketing copy.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func generateNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func hashCode(code string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(code)))
}
