package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// maxWebhookBody caps the payload we read before verifying the signature.
// Stripe events are a few KB; 64KB is generous.
const maxWebhookBody = 64 << 10

// processingTimeout bounds one event's database work; Stripe redelivers on
// timeout like any other 5xx.
const processingTimeout = 30 * time.Second

type webhookProcessor interface {
	HandleEvent(ctx context.Context, event stripe.Event) error
}

type WebhookHandler struct {
	billing       webhookProcessor
	signingSecret string
	logger        *slog.Logger
}

func NewWebhookHandler(billing webhookProcessor, signingSecret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:       billing,
		signingSecret: signingSecret,
		logger:        logger.With("component", "webhook_handler"),
	}
}

// POST /webhooks/stripe
// The signature is verified against the raw body before anything is parsed;
// an unsigned or tampered payload never reaches the dispatcher. Processing
// failures return 5xx so the provider redelivers.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.signingSecret)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), processingTimeout)
	defer cancel()

	if err := h.billing.HandleEvent(ctx, event); err != nil {
		h.logger.Error("webhook processing", "event_id", event.ID, "type", event.Type, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
