package repository

import (
	"context"

	"github.com/bridgezone/market-api/internal/domain"
)

type NotificationRepository interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}
