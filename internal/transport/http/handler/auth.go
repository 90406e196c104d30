package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/usecase"
	"github.com/gin-gonic/gin"
)

// authUsecaser is the subset of AuthUsecase the handler needs.
// Defined here (point of use) so tests can inject a fake.
type authUsecaser interface {
	SignUp(ctx context.Context, input usecase.SignUpInput) (*usecase.Session, error)
	SignIn(ctx context.Context, email, password string) (*usecase.Session, error)
	ValidateInvitation(ctx context.Context, code string) (*usecase.InvitationPreview, error)
	RedeemInvitation(ctx context.Context, code string) (*usecase.Session, error)
	RequestLoginCode(ctx context.Context, email, ip, userAgent string) (time.Duration, error)
	VerifyLoginCode(ctx context.Context, email, code string) (*usecase.Session, error)
}

type AuthHandler struct {
	authUsecase authUsecaser
	logger      *slog.Logger
}

func NewAuthHandler(authUsecase authUsecaser, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authUsecase: authUsecase,
		logger:      logger.With("component", "auth_handler"),
	}
}

type userResponse struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	Name               string `json:"name,omitempty"`
	CompanyName        string `json:"company_name,omitempty"`
	Tier               string `json:"tier"`
	SubscriptionStatus string `json:"subscription_status"`
	VerificationStatus string `json:"verification_status"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		CompanyName:        u.CompanyName,
		Tier:               string(u.Tier),
		SubscriptionStatus: string(u.SubscriptionStatus),
		VerificationStatus: string(u.VerificationStatus),
	}
}

func sessionResponse(s *usecase.Session) gin.H {
	return gin.H{"token": s.Token, "user": toUserResponse(s.User)}
}

type signUpRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	Name        string `json:"name"`
	CompanyName string `json:"company_name"`
}

// POST /auth/signup
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.authUsecase.SignUp(c.Request.Context(), usecase.SignUpInput{
		Email:       req.Email,
		Password:    req.Password,
		Name:        req.Name,
		CompanyName: req.CompanyName,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": errWeakPassword})
		case errors.Is(err, domain.ErrDuplicateEmail):
			c.JSON(http.StatusConflict, gin.H{"error": errEmailTaken})
		default:
			h.logger.Error("sign up", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	c.JSON(http.StatusCreated, sessionResponse(session))
}

type signInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// POST /auth/signin
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.authUsecase.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": errInvalidCredentials})
			return
		}
		h.logger.Error("sign in", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, sessionResponse(session))
}

type invitationRequest struct {
	Code string `json:"code" binding:"required"`
}

// POST /auth/invitation/validate
// Non-consuming preview: always 200, validity reported in the body.
func (h *AuthHandler) ValidateInvitation(c *gin.Context) {
	var req invitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	preview, err := h.authUsecase.ValidateInvitation(c.Request.Context(), req.Code)
	if err != nil {
		h.logger.Error("validate invitation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	resp := gin.H{
		"is_valid": preview.Valid,
		"message":  preview.Message,
	}
	if preview.Valid {
		resp["tier"] = string(preview.Tier)
	}
	c.JSON(http.StatusOK, resp)
}

// POST /auth/invitation
// Consumes one use of the code and signs into its account.
func (h *AuthHandler) RedeemInvitation(c *gin.Context) {
	var req invitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.authUsecase.RedeemInvitation(c.Request.Context(), req.Code)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCode):
			c.JSON(http.StatusUnauthorized, gin.H{"error": errInvalidCode})
		case errors.Is(err, domain.ErrCodeExhausted):
			c.JSON(http.StatusConflict, gin.H{"error": errCodeExhausted})
		default:
			h.logger.Error("redeem invitation", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	c.JSON(http.StatusOK, sessionResponse(session))
}

type loginCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// POST /auth/login-code
func (h *AuthHandler) RequestLoginCode(c *gin.Context) {
	var req loginCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	expiresIn, err := h.authUsecase.RequestLoginCode(
		c.Request.Context(), req.Email, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": errCodeRateLimited})
		case errors.Is(err, domain.ErrEmailDelivery):
			c.JSON(http.StatusBadGateway, gin.H{"error": errEmailDelivery})
		default:
			h.logger.Error("request login code", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Check your inbox for the sign-in code.",
		"expires_in": int(expiresIn.Seconds()),
	})
}

type verifyLoginCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

// POST /auth/login-code/verify
func (h *AuthHandler) VerifyLoginCode(c *gin.Context) {
	var req verifyLoginCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.authUsecase.VerifyLoginCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrExpiredCode) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": errLoginCodeInvalid})
			return
		}
		h.logger.Error("verify login code", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, sessionResponse(session))
}
