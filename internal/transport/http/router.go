package httptransport

import (
	"log/slog"

	"github.com/bridgezone/market-api/internal/transport/http/handler"
	"github.com/bridgezone/market-api/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	sloggin "github.com/samber/slog-gin"
)

type RouterConfig struct {
	JWTKey        []byte
	AuthRateLimit rate.Limit
	AuthRateBurst int
}

func NewRouter(
	logger *slog.Logger,
	cfg RouterConfig,
	authHandler *handler.AuthHandler,
	accountHandler *handler.AccountHandler,
	productHandler *handler.ProductHandler,
	webhookHandler *handler.WebhookHandler,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authMW := middleware.Auth(cfg.JWTKey)

	// Identity endpoints get an extra per-IP bucket on top of the per-email
	// window enforced in the usecase.
	auth := r.Group("/auth", middleware.RateLimit(cfg.AuthRateLimit, cfg.AuthRateBurst))
	auth.POST("/signup", authHandler.SignUp)
	auth.POST("/signin", authHandler.SignIn)
	auth.POST("/invitation/validate", authHandler.ValidateInvitation)
	auth.POST("/invitation", authHandler.RedeemInvitation)
	auth.POST("/login-code", authHandler.RequestLoginCode)
	auth.POST("/login-code/verify", authHandler.VerifyLoginCode)

	me := r.Group("/me", authMW)
	me.GET("", accountHandler.Me)
	me.GET("/limits", accountHandler.Limits)
	me.GET("/notifications", accountHandler.Notifications)
	me.POST("/notifications/:id/read", accountHandler.MarkNotificationRead)
	me.GET("/transactions", accountHandler.Transactions)

	r.GET("/orders/:id", authMW, accountHandler.Order)

	products := r.Group("/products")
	products.GET("", productHandler.List)
	products.GET("/:id", productHandler.GetByID)
	products.POST("", authMW, productHandler.Create)

	// Authenticated by signature, not JWT.
	r.POST("/webhooks/stripe", webhookHandler.HandleStripe)

	return r
}
