package model

import (
	"fmt"
	"time"
)

// SystemTenant is the tenant identifier recorded for notifications that are
// not scoped to any tenant.
const SystemTenant = "system"

// SystemActor is the actor component used in batch keys for notifications
// that were not triggered by a user action.
const SystemActor = "system"

// Type identifies the category of a notification.
type Type string

// The notification types recognized by the service. Clients use these to pick
// icons and group related entries.
const (
	TypeMemberJoined         Type = "member_joined"
	TypeMemberInvited        Type = "member_invited"
	TypeSettingsChanged      Type = "settings_changed"
	TypeWelcome              Type = "welcome"
	TypeTenantCreated        Type = "tenant_created"
	TypeSubscriptionActive   Type = "subscription_activated"
	TypePaymentFailed        Type = "payment_failed"
	TypeTrialEnding          Type = "trial_ending"
	TypeSubscriptionCanceled Type = "subscription_canceled"
	TypeTest                 Type = "test"
)

// Notification represents a single inbox entry for one recipient.
type Notification struct {
	ID              string                 `json:"id"`
	TenantID        string                 `json:"tenantId"`
	RecipientUserID string                 `json:"recipientUserId"`
	ActorUserID     string                 `json:"actorUserId,omitempty"`
	Type            Type                   `json:"type"`
	Title           string                 `json:"title"`
	Body            string                 `json:"body"`
	DeepLink        string                 `json:"deepLink,omitempty"`
	Data            map[string]interface{} `json:"data,omitempty"`
	BatchKey        string                 `json:"batchKey,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	ReadAt          *time.Time             `json:"readAt,omitempty"`
	ArchivedAt      *time.Time             `json:"archivedAt,omitempty"`
}

// Read returns true if the notification has been marked as read.
func (n *Notification) Read() bool {
	return n.ReadAt != nil
}

// Archived returns true if the notification has been archived.
func (n *Notification) Archived() bool {
	return n.ArchivedAt != nil
}

// BatchKey derives the grouping key for notifications created by the same
// actor and type within the same sixty-second window. The key is advisory;
// clients use it to collapse near-simultaneous notifications into one entry.
func BatchKey(actorUserID string, notificationType Type, at time.Time) string {
	if actorUserID == "" {
		actorUserID = SystemActor
	}
	return fmt.Sprintf("%s_%s_%d", actorUserID, notificationType, at.Unix()/60)
}
