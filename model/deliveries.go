package model

import "time"

// Channel identifies the path a notification was delivered over.
type Channel string

// The delivery channels recorded in the audit log.
const (
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
)

// DeliveryStatus describes the outcome of a single delivery attempt.
type DeliveryStatus string

// The delivery statuses recorded in the audit log.
const (
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
	StatusPending DeliveryStatus = "pending"
)

// Delivery is one row in the append-only delivery audit log. Each row records
// a single attempt to deliver a notification over one channel.
type Delivery struct {
	ID                string         `json:"id"`
	NotificationID    string         `json:"notificationId"`
	Channel           Channel        `json:"channel"`
	Status            DeliveryStatus `json:"status"`
	ProviderMessageID string         `json:"providerMessageId,omitempty"`
	Error             string         `json:"error,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}
