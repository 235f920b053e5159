package events

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// ErrUnknownEvent indicates that an event name is not in the catalogue.
var ErrUnknownEvent = errors.New("unknown event name")

// Event is implemented by every message in the application event catalogue.
type Event interface {
	// EventName returns the catalogued event name, for example "invite.accepted".
	EventName() string
}

// The names in the application event catalogue.
const (
	NameUserSignedUp              = "user.signed_up"
	NameUserVerified              = "user.verified"
	NameInviteSent                = "invite.sent"
	NameInviteAccepted            = "invite.accepted"
	NameTenantCreated             = "tenant.created"
	NameTenantMemberJoined        = "tenant.member_joined"
	NameTenantSettingsChanged     = "tenant.settings_changed"
	NameSubscriptionActivated     = "subscription.activated"
	NameSubscriptionPaymentFailed = "subscription.payment_failed"
	NameSubscriptionTrialEnding   = "subscription.trial_ending"
	NameSubscriptionCanceled      = "subscription.canceled"
	NameNotificationTest          = "notification.test"
)

// UserSignedUp is emitted when a new account is created, before the address
// has been verified.
type UserSignedUp struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	UserName string `json:"name"`
}

// EventName returns the catalogued event name.
func (UserSignedUp) EventName() string { return NameUserSignedUp }

// UserVerified is emitted when a user completes email verification.
type UserVerified struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	UserName string `json:"name"`
}

// EventName returns the catalogued event name.
func (UserVerified) EventName() string { return NameUserVerified }

// InviteSent is emitted when a tenant member invites someone by email. The
// invitee may or may not already have an account; InviteeUserID is empty when
// they do not.
type InviteSent struct {
	TenantID      string `json:"tenantId"`
	TenantName    string `json:"tenantName"`
	InviterUserID string `json:"inviterUserId"`
	InviterName   string `json:"inviterName"`
	InviteeEmail  string `json:"inviteeEmail"`
	InviteeUserID string `json:"inviteeUserId,omitempty"`
	Locale        string `json:"locale,omitempty"`
}

// EventName returns the catalogued event name.
func (InviteSent) EventName() string { return NameInviteSent }

// InviteAccepted is emitted when an invitee accepts an invitation and joins
// the tenant.
type InviteAccepted struct {
	UserID        string `json:"userId"`
	UserName      string `json:"userName"`
	TenantID      string `json:"tenantId"`
	TenantName    string `json:"tenantName"`
	InviterUserID string `json:"inviterUserId"`
}

// EventName returns the catalogued event name.
func (InviteAccepted) EventName() string { return NameInviteAccepted }

// TenantCreated is emitted when a new tenant is created.
type TenantCreated struct {
	TenantID    string `json:"tenantId"`
	TenantName  string `json:"tenantName"`
	OwnerUserID string `json:"ownerUserId"`
}

// EventName returns the catalogued event name.
func (TenantCreated) EventName() string { return NameTenantCreated }

// TenantMemberJoined is emitted when a user becomes a member of a tenant
// through any path other than accepting an invitation.
type TenantMemberJoined struct {
	TenantID    string `json:"tenantId"`
	TenantName  string `json:"tenantName"`
	OwnerUserID string `json:"ownerUserId"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
}

// EventName returns the catalogued event name.
func (TenantMemberJoined) EventName() string { return NameTenantMemberJoined }

// TenantSettingsChanged is emitted when a member changes tenant settings.
type TenantSettingsChanged struct {
	TenantID    string `json:"tenantId"`
	TenantName  string `json:"tenantName"`
	OwnerUserID string `json:"ownerUserId"`
	ActorUserID string `json:"actorUserId"`
	ActorName   string `json:"actorName"`
}

// EventName returns the catalogued event name.
func (TenantSettingsChanged) EventName() string { return NameTenantSettingsChanged }

// SubscriptionActivated is emitted when a tenant's paid subscription becomes
// active.
type SubscriptionActivated struct {
	TenantID    string `json:"tenantId"`
	TenantName  string `json:"tenantName"`
	OwnerUserID string `json:"ownerUserId"`
	PlanName    string `json:"planName"`
}

// EventName returns the catalogued event name.
func (SubscriptionActivated) EventName() string { return NameSubscriptionActivated }

// SubscriptionPaymentFailed is emitted when a subscription payment attempt
// fails.
type SubscriptionPaymentFailed struct {
	TenantID    string `json:"tenantId"`
	TenantName  string `json:"tenantName"`
	OwnerUserID string `json:"ownerUserId"`
	OwnerEmail  string `json:"ownerEmail"`
	PlanName    string `json:"planName"`
	Locale      string `json:"locale,omitempty"`
}

// EventName returns the catalogued event name.
func (SubscriptionPaymentFailed) EventName() string { return NameSubscriptionPaymentFailed }

// SubscriptionTrialEnding is emitted a few days before a trial expires.
type SubscriptionTrialEnding struct {
	TenantID    string `json:"tenantId"`
	TenantName  string `json:"tenantName"`
	OwnerUserID string `json:"ownerUserId"`
	OwnerEmail  string `json:"ownerEmail"`
	PlanName    string `json:"planName"`
	DaysLeft    int    `json:"daysLeft"`
	Locale      string `json:"locale,omitempty"`
}

// EventName returns the catalogued event name.
func (SubscriptionTrialEnding) EventName() string { return NameSubscriptionTrialEnding }

// SubscriptionCanceled is emitted when a subscription is canceled.
type SubscriptionCanceled struct {
	TenantID    string `json:"tenantId"`
	TenantName  string `json:"tenantName"`
	OwnerUserID string `json:"ownerUserId"`
	OwnerEmail  string `json:"ownerEmail"`
	PlanName    string `json:"planName"`
	Locale      string `json:"locale,omitempty"`
}

// EventName returns the catalogued event name.
func (SubscriptionCanceled) EventName() string { return NameSubscriptionCanceled }

// NotificationTest is emitted when a user requests a test notification.
type NotificationTest struct {
	UserID string `json:"userId"`
}

// EventName returns the catalogued event name.
func (NotificationTest) EventName() string { return NameNotificationTest }

// decoderFor maps each catalogued event name to its wire decoder.
var decoderFor = map[string]func(body []byte) (Event, error){
	NameUserSignedUp:              decodeJSON[UserSignedUp],
	NameUserVerified:              decodeJSON[UserVerified],
	NameInviteSent:                decodeJSON[InviteSent],
	NameInviteAccepted:            decodeJSON[InviteAccepted],
	NameTenantCreated:             decodeJSON[TenantCreated],
	NameTenantMemberJoined:        decodeJSON[TenantMemberJoined],
	NameTenantSettingsChanged:     decodeJSON[TenantSettingsChanged],
	NameSubscriptionActivated:     decodeJSON[SubscriptionActivated],
	NameSubscriptionPaymentFailed: decodeJSON[SubscriptionPaymentFailed],
	NameSubscriptionTrialEnding:   decodeJSON[SubscriptionTrialEnding],
	NameSubscriptionCanceled:      decodeJSON[SubscriptionCanceled],
	NameNotificationTest:          decodeJSON[NotificationTest],
}

// decodeJSON unmarshals an event body into the catalogue type for its name.
func decodeJSON[T Event](body []byte) (Event, error) {
	var event T
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, errors.Wrapf(err, "unable to parse the %s event body", event.EventName())
	}
	return event, nil
}

// Decode converts a wire message into a catalogued event. A name that is not
// in the catalogue returns an error wrapping ErrUnknownEvent, which callers
// can distinguish from a malformed body.
func Decode(eventName string, body []byte) (Event, error) {
	decode, ok := decoderFor[eventName]
	if !ok {
		return nil, errors.Wrap(ErrUnknownEvent, eventName)
	}
	return decode(body)
}

// Names returns the full event catalogue in sorted order, for callers that
// need to check that every event has a handler registered.
func Names() []string {
	names := make([]string, 0, len(decoderFor))
	for name := range decoderFor {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
