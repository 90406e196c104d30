package handler_test

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bridgezone/market-api/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testSigningSecret = "whsec_test_secret"

type fakeBilling struct {
	handleEvent func(ctx context.Context, event stripe.Event) error
}

func (f *fakeBilling) HandleEvent(ctx context.Context, event stripe.Event) error {
	return f.handleEvent(ctx, event)
}

func newWebhookEngine(billing *fakeBilling) *gin.Engine {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	h := handler.NewWebhookHandler(billing, testSigningSecret, logger)

	r := gin.New()
	r.POST("/webhooks/stripe", h.HandleStripe)
	return r
}

// signedRequest builds a request with a valid Stripe-Signature header for payload.
func signedRequest(payload string) *http.Request {
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), testSigningSecret)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig)))
	return req
}

// api_version must match the pinned stripe-go version or ConstructEvent
// rejects the event before dispatch.
const eventPayload = `{"id":"evt_1","api_version":"2023-10-16","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`

func TestHandleStripe_MissingSignature_Returns400(t *testing.T) {
	billing := &fakeBilling{
		handleEvent: func(_ context.Context, _ stripe.Event) error {
			t.Error("unsigned payload must never reach the dispatcher")
			return nil
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(eventPayload))
	newWebhookEngine(billing).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleStripe_TamperedPayload_Returns400(t *testing.T) {
	billing := &fakeBilling{
		handleEvent: func(_ context.Context, _ stripe.Event) error {
			t.Error("tampered payload must never reach the dispatcher")
			return nil
		},
	}

	req := signedRequest(eventPayload)
	// Replace the body after signing.
	tampered := strings.Replace(eventPayload, "pi_1", "pi_evil", 1)
	req.Body = httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(tampered)).Body

	w := httptest.NewRecorder()
	newWebhookEngine(billing).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleStripe_ValidSignature_DispatchesAndReturns200(t *testing.T) {
	var received stripe.Event
	billing := &fakeBilling{
		handleEvent: func(_ context.Context, event stripe.Event) error {
			received = event
			return nil
		},
	}

	w := httptest.NewRecorder()
	newWebhookEngine(billing).ServeHTTP(w, signedRequest(eventPayload))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if received.ID != "evt_1" {
		t.Errorf("dispatched event id = %q, want evt_1", received.ID)
	}
	if !strings.Contains(w.Body.String(), `"received":true`) {
		t.Errorf("body = %s, want received ack", w.Body.String())
	}
}

func TestHandleStripe_ProcessingError_Returns500ForRedelivery(t *testing.T) {
	billing := &fakeBilling{
		handleEvent: func(_ context.Context, _ stripe.Event) error {
			return errors.New("db down")
		},
	}

	w := httptest.NewRecorder()
	newWebhookEngine(billing).ServeHTTP(w, signedRequest(eventPayload))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 so the provider redelivers", w.Code)
	}
}
