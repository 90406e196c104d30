package domain

import "time"

type NotificationKind string

const (
	NotificationSubscriptionStarted   NotificationKind = "subscription_started"
	NotificationSubscriptionPastDue   NotificationKind = "subscription_past_due"
	NotificationSubscriptionCancelled NotificationKind = "subscription_cancelled"
	NotificationProductSold           NotificationKind = "product_sold"
)

type Notification struct {
	ID        string
	UserID    string
	Kind      NotificationKind
	Body      string
	ReadAt    *time.Time
	CreatedAt time.Time
}
