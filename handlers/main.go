// Package handlers connects the application event catalogue to the
// notification dispatcher. One handler per event decides whether the event
// warrants a notification, builds the display strings, and triggers the
// side effects that go with it. Side effects other than the inbox write are
// best-effort: a push-provider or mailer outage is logged and recorded, never
// propagated back to the business action that emitted the event.
package handlers

import (
	"context"

	"github.com/cyverse-de/notification-hub/events"
	"github.com/cyverse-de/notification-hub/mailer"
	"github.com/cyverse-de/notification-hub/model"
	"github.com/cyverse-de/notification-hub/notify"
	"github.com/cyverse-de/notification-hub/push"
	"github.com/cyverse-de/notification-hub/stream"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithFields(logrus.Fields{
	"service": "notification-hub",
	"art-id":  "notification-hub",
	"group":   "org.cyverse",
})

// Dispatcher describes the notification dispatcher operations the handlers
// use.
type Dispatcher interface {
	Notify(ctx context.Context, request *notify.Request) (*model.Notification, error)
	RecordDelivery(ctx context.Context, delivery *model.Delivery) error
	Preferences(ctx context.Context, userID string) *model.ChannelPreferences
}

// Deps holds the collaborators the handlers act through.
type Deps struct {
	Dispatcher Dispatcher
	Stream     stream.Stream
	Mailer     mailer.Mailer
	Provider   push.Provider
}

// Handlers reacts to application events by creating notifications.
type Handlers struct {
	deps *Deps
}

// New creates a new handler set.
func New(deps *Deps) *Handlers {
	return &Handlers{deps: deps}
}

// Register wires a handler for every event in the catalogue onto the bus.
func Register(bus *events.Bus, deps *Deps) *Handlers {
	h := New(deps)
	events.Listen(bus, h.UserSignedUp)
	events.Listen(bus, h.UserVerified)
	events.Listen(bus, h.InviteSent)
	events.Listen(bus, h.InviteAccepted)
	events.Listen(bus, h.TenantCreated)
	events.Listen(bus, h.TenantMemberJoined)
	events.Listen(bus, h.TenantSettingsChanged)
	events.Listen(bus, h.SubscriptionActivated)
	events.Listen(bus, h.SubscriptionPaymentFailed)
	events.Listen(bus, h.SubscriptionTrialEnding)
	events.Listen(bus, h.SubscriptionCanceled)
	events.Listen(bus, h.NotificationTest)
	return h
}

// NotificationTest creates a test notification for the requesting user.
func (h *Handlers) NotificationTest(ctx context.Context, event events.NotificationTest) error {
	notification, err := h.deps.Dispatcher.Notify(ctx, &notify.Request{
		RecipientUserID: event.UserID,
		Type:            model.TypeTest,
		Title:           "Test notification",
		Body:            "If you can read this, notifications are working.",
	})
	if err != nil {
		return err
	}
	h.publish(notification)
	return nil
}

// publish announces a new notification to the recipient's live connections.
func (h *Handlers) publish(notification *model.Notification) {
	h.deps.Stream.Publish(notification.RecipientUserID, notification)
}

// sendEmail delivers a side-channel email without ever blocking the inbox
// path. The outcome is appended to the delivery audit log when there is a
// notification to attach it to. A recipient with an account who disabled the
// email channel is skipped silently, as is an unconfigured mailer.
func (h *Handlers) sendEmail(ctx context.Context, userID string, notification *model.Notification, request mailer.Request) {
	if userID != "" && !h.deps.Dispatcher.Preferences(ctx, userID).EmailEnabled {
		return
	}

	messageID, err := h.deps.Mailer.SendTemplateEmail(ctx, request)
	if errors.Is(err, mailer.ErrNotConfigured) {
		return
	}
	if err != nil {
		log.Errorf("unable to send the %s email to %s: %s", request.TemplateName, request.To, err)
	}
	if notification == nil {
		return
	}

	delivery := &model.Delivery{
		NotificationID:    notification.ID,
		Channel:           model.ChannelEmail,
		Status:            model.StatusSent,
		ProviderMessageID: messageID,
	}
	if err != nil {
		delivery.Status = model.StatusFailed
		delivery.ProviderMessageID = ""
		delivery.Error = err.Error()
	}
	if err := h.deps.Dispatcher.RecordDelivery(ctx, delivery); err != nil {
		log.Errorf("unable to record the email delivery for notification %s: %s", notification.ID, err)
	}
}
