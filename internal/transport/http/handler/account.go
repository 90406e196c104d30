package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

type accountReader interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

type limitsReader interface {
	Limits(ctx context.Context, userID string) (*domain.UserLimits, error)
}

type subscriptionReader interface {
	CurrentSubscription(ctx context.Context, userID string) (*domain.Subscription, error)
}

type notificationStore interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type ledgerReader interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error)
}

type AccountHandler struct {
	users         accountReader
	entitlements  limitsReader
	billing       subscriptionReader
	notifications notificationStore
	ledger        ledgerReader
	logger        *slog.Logger
}

func NewAccountHandler(
	users accountReader,
	entitlements limitsReader,
	billing subscriptionReader,
	notifications notificationStore,
	ledger ledgerReader,
	logger *slog.Logger,
) *AccountHandler {
	return &AccountHandler{
		users:         users,
		entitlements:  entitlements,
		billing:       billing,
		notifications: notifications,
		ledger:        ledger,
		logger:        logger.With("component", "account_handler"),
	}
}

// GET /me
func (h *AccountHandler) Me(c *gin.Context) {
	userID := middleware.UserID(c)

	user, err := h.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errUserNotFound})
			return
		}
		h.logger.Error("find user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	resp := gin.H{
		"user":          toUserResponse(user),
		"balance_cents": user.BalanceCents,
		"currency":      user.Currency,
	}

	sub, err := h.billing.CurrentSubscription(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("find subscription", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if sub != nil {
		resp["subscription"] = gin.H{
			"plan":                 string(sub.Plan),
			"status":               string(sub.Status),
			"price_cents":          sub.PriceCents,
			"currency":             sub.Currency,
			"current_period_start": sub.CurrentPeriodStart,
			"current_period_end":   sub.CurrentPeriodEnd,
			"cancelled_at":         sub.CancelledAt,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// GET /me/limits
func (h *AccountHandler) Limits(c *gin.Context) {
	limits, err := h.entitlements.Limits(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errUserNotFound})
			return
		}
		h.logger.Error("get limits", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"max_products":          limits.MaxProducts,
		"max_purchases":         limits.MaxPurchases,
		"current_products":      limits.CurrentProducts,
		"purchases_this_period": limits.PurchasesThisPeriod,
		"period_started_at":     limits.PeriodStartedAt,
	})
}

type notificationResponse struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// GET /me/notifications
func (h *AccountHandler) Notifications(c *gin.Context) {
	rows, err := h.notifications.ListByUser(c.Request.Context(), middleware.UserID(c), 50)
	if err != nil {
		h.logger.Error("list notifications", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	out := make([]notificationResponse, 0, len(rows))
	for _, n := range rows {
		out = append(out, notificationResponse{
			ID:        n.ID,
			Kind:      string(n.Kind),
			Body:      n.Body,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

type transactionResponse struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

// GET /me/transactions
func (h *AccountHandler) Transactions(c *gin.Context) {
	rows, err := h.ledger.ListTransactions(c.Request.Context(), middleware.UserID(c), 50)
	if err != nil {
		h.logger.Error("list transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	out := make([]transactionResponse, 0, len(rows))
	for _, tx := range rows {
		out = append(out, transactionResponse{
			ID:          tx.ID,
			OrderID:     tx.OrderID,
			Type:        string(tx.Type),
			AmountCents: tx.AmountCents,
			Currency:    tx.Currency,
			CreatedAt:   tx.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

// GET /orders/:id
// Visible to the buyer and the seller only.
func (h *AccountHandler) Order(c *gin.Context) {
	order, err := h.ledger.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errOrderNotFound})
			return
		}
		h.logger.Error("get order", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	userID := middleware.UserID(c)
	if order.BuyerID != userID && order.SellerID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": errOrderNotFound})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                  order.ID,
		"product_id":          order.ProductID,
		"buyer_id":            order.BuyerID,
		"seller_id":           order.SellerID,
		"amount_cents":        order.AmountCents,
		"currency":            order.Currency,
		"platform_fee_cents":  order.PlatformFeeCents,
		"processor_fee_cents": order.ProcessorFeeCents,
		"seller_net_cents":    order.SellerNetCents,
		"created_at":          order.CreatedAt,
	})
}

// POST /me/notifications/:id/read
func (h *AccountHandler) MarkNotificationRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		h.logger.Error("mark notification read", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusNoContent)
}
