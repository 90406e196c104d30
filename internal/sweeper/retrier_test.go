package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bridgezone/market-api/internal/domain"
)

type fakeEventRepo struct {
	claimRetryable func(ctx context.Context, limit int) ([]*domain.WebhookEvent, error)
}

func (r *fakeEventRepo) Begin(_ context.Context, _, _ string, _ []byte) (bool, error) {
	return false, nil
}
func (r *fakeEventRepo) MarkProcessed(_ context.Context, _ string) error       { return nil }
func (r *fakeEventRepo) MarkSkipped(_ context.Context, _ string) error         { return nil }
func (r *fakeEventRepo) MarkFailed(_ context.Context, _ string, _ string) error { return nil }
func (r *fakeEventRepo) ClaimRetryable(ctx context.Context, limit int) ([]*domain.WebhookEvent, error) {
	return r.claimRetryable(ctx, limit)
}

type fakeReapplier struct {
	reapply func(ctx context.Context, event *domain.WebhookEvent) error
}

func (f *fakeReapplier) Reapply(ctx context.Context, event *domain.WebhookEvent) error {
	return f.reapply(ctx, event)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweep_ReappliesEveryClaimedEvent(t *testing.T) {
	claimed := []*domain.WebhookEvent{
		{ID: "evt_1", Type: "customer.subscription.updated"},
		{ID: "evt_2", Type: "invoice.payment_failed"},
	}
	events := &fakeEventRepo{
		claimRetryable: func(_ context.Context, limit int) ([]*domain.WebhookEvent, error) {
			if limit != 50 {
				t.Errorf("claim limit = %d, want batch size", limit)
			}
			return claimed, nil
		},
	}

	var reapplied []string
	billing := &fakeReapplier{
		reapply: func(_ context.Context, event *domain.WebhookEvent) error {
			reapplied = append(reapplied, event.ID)
			return nil
		},
	}

	r := NewRetrier(events, billing, testLogger(), time.Minute, 50)
	r.sweep(context.Background())

	if len(reapplied) != 2 || reapplied[0] != "evt_1" || reapplied[1] != "evt_2" {
		t.Errorf("reapplied = %v, want both claimed events in order", reapplied)
	}
}

func TestSweep_OneFailureDoesNotStopTheBatch(t *testing.T) {
	events := &fakeEventRepo{
		claimRetryable: func(_ context.Context, _ int) ([]*domain.WebhookEvent, error) {
			return []*domain.WebhookEvent{{ID: "evt_1"}, {ID: "evt_2"}}, nil
		},
	}

	var attempted []string
	billing := &fakeReapplier{
		reapply: func(_ context.Context, event *domain.WebhookEvent) error {
			attempted = append(attempted, event.ID)
			if event.ID == "evt_1" {
				return errors.New("still broken")
			}
			return nil
		},
	}

	r := NewRetrier(events, billing, testLogger(), time.Minute, 50)
	r.sweep(context.Background())

	if len(attempted) != 2 {
		t.Errorf("attempted = %v, want the batch to continue past a failure", attempted)
	}
}
