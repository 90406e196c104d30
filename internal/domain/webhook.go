package domain

import "time"

type WebhookStatus string

const (
	WebhookProcessed WebhookStatus = "processed"
	WebhookFailed    WebhookStatus = "failed"
	WebhookSkipped   WebhookStatus = "skipped"
)

// WebhookEventMaxAttempts caps sweeper retries for a failed event.
const WebhookEventMaxAttempts = 5

// WebhookEvent is the processing ledger for provider events. ID is the
// provider's event id, which makes duplicate delivery a primary-key conflict.
type WebhookEvent struct {
	ID        string
	Type      string
	Payload   []byte
	Status    WebhookStatus
	Attempts  int
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
