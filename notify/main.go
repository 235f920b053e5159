// Package notify creates notifications and drives their delivery. The inbox
// entry is the authoritative record of a notification's existence; pushes and
// the audit rows behind them are best-effort enhancements layered on top.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cyverse-de/notification-hub/model"
	"github.com/cyverse-de/notification-hub/push"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithFields(logrus.Fields{
	"service": "notification-hub",
	"art-id":  "notification-hub",
	"group":   "org.cyverse",
})

// DatabaseClient describes the database operations the dispatcher uses.
type DatabaseClient interface {
	Begin(ctx context.Context) (*sql.Tx, error)
	Commit(tx *sql.Tx) error
	Rollback(tx *sql.Tx) error
	SaveNotification(ctx context.Context, tx *sql.Tx, notification *model.Notification) error
	SaveDelivery(ctx context.Context, tx *sql.Tx, delivery *model.Delivery) error
	GetChannelPreferences(ctx context.Context, tx *sql.Tx, userID string) (*model.ChannelPreferences, error)
}

// Request describes one notification to create and deliver.
type Request struct {
	RecipientUserID string
	TenantID        string
	Type            model.Type
	Title           string
	Body            string
	DeepLink        string
	Data            map[string]interface{}
	ActorUserID     string
}

// Dispatcher creates inbox entries and attempts push delivery for them.
type Dispatcher struct {
	database DatabaseClient
	provider push.Provider
	now      func() time.Time
}

// NewDispatcher creates a new notification dispatcher. Pass the no-op push
// provider when no real one is configured.
func NewDispatcher(database DatabaseClient, provider push.Provider) *Dispatcher {
	return &Dispatcher{
		database: database,
		provider: provider,
		now:      time.Now,
	}
}

// Notify creates the inbox entry for a notification and attempts push
// delivery when the recipient has it enabled. A failure to persist the inbox
// entry is returned to the caller; push failures are recorded in the delivery
// audit log and never surface here.
func (d *Dispatcher) Notify(ctx context.Context, request *Request) (*model.Notification, error) {
	wrapMsg := "unable to dispatch the notification"

	// Normalize the tenant scope and derive the grouping key.
	tenantID := request.TenantID
	if tenantID == "" {
		tenantID = model.SystemTenant
	}
	notification := &model.Notification{
		TenantID:        tenantID,
		RecipientUserID: request.RecipientUserID,
		ActorUserID:     request.ActorUserID,
		Type:            request.Type,
		Title:           request.Title,
		Body:            request.Body,
		DeepLink:        request.DeepLink,
		Data:            request.Data,
		BatchKey:        model.BatchKey(request.ActorUserID, request.Type, d.now()),
	}

	// Create the inbox entry. This write is the one step that must succeed.
	err := d.saveNotification(ctx, notification)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Attempt push delivery when the recipient has the channel enabled.
	if d.channelPreferences(ctx, request.RecipientUserID).PushEnabled {
		d.sendPush(ctx, notification)
	}

	return notification, nil
}

// saveNotification stores the inbox entry in its own transaction.
func (d *Dispatcher) saveNotification(ctx context.Context, notification *model.Notification) error {

	// Begin a database transaction.
	tx, err := d.database.Begin(ctx)
	if err != nil {
		return err
	}
	defer d.database.Rollback(tx) // nolint:errcheck

	// Store the notification.
	err = d.database.SaveNotification(ctx, tx, notification)
	if err != nil {
		return err
	}

	// Commit the transaction.
	return d.database.Commit(tx)
}

// Preferences returns the user's channel preferences, falling back to the
// defaults when the lookup fails. Handlers use it to decide whether an email
// side effect should fire at all.
func (d *Dispatcher) Preferences(ctx context.Context, userID string) *model.ChannelPreferences {
	return d.channelPreferences(ctx, userID)
}

// channelPreferences looks up the recipient's channel preferences. A lookup
// failure falls back to the defaults; the notification was already persisted
// and must not be lost to a preference read.
func (d *Dispatcher) channelPreferences(ctx context.Context, userID string) *model.ChannelPreferences {
	preferences, err := d.lookupPreferences(ctx, userID)
	if err != nil {
		log.Errorf("unable to look up the channel preferences for %s, applying the defaults: %s", userID, err)
		return model.DefaultChannelPreferences(userID)
	}
	return preferences
}

// lookupPreferences reads the channel preferences in their own transaction.
func (d *Dispatcher) lookupPreferences(ctx context.Context, userID string) (*model.ChannelPreferences, error) {

	// Begin a database transaction.
	tx, err := d.database.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer d.database.Rollback(tx) // nolint:errcheck

	// Look up the preferences.
	preferences, err := d.database.GetChannelPreferences(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	// Commit the transaction.
	err = d.database.Commit(tx)
	if err != nil {
		return nil, err
	}

	return preferences, nil
}

// pushContent converts a notification to the push payload.
func pushContent(notification *model.Notification) push.Content {
	data := make(map[string]string, len(notification.Data)+2)
	for key, value := range notification.Data {
		data[key] = fmt.Sprint(value)
	}
	data["notificationId"] = notification.ID
	data["type"] = string(notification.Type)
	return push.Content{
		Title:    notification.Title,
		Body:     notification.Body,
		DeepLink: notification.DeepLink,
		Data:     data,
	}
}

// sendPush attempts push delivery and records the outcome in the delivery
// audit log. A recipient with no registered devices is a deliberate skip and
// leaves no audit record.
func (d *Dispatcher) sendPush(ctx context.Context, notification *model.Notification) {
	messageID, err := d.provider.SendInApp(ctx, notification.RecipientUserID, pushContent(notification))
	if errors.Is(err, push.ErrNoCredentials) {
		return
	}

	delivery := &model.Delivery{
		NotificationID:    notification.ID,
		Channel:           model.ChannelPush,
		Status:            model.StatusSent,
		ProviderMessageID: messageID,
	}
	if err != nil {
		log.Errorf("unable to deliver notification %s over push: %s", notification.ID, err)
		delivery.Status = model.StatusFailed
		delivery.ProviderMessageID = ""
		delivery.Error = err.Error()
	}

	// Record the outcome. The audit log is diagnostic; a failure to append to
	// it is logged rather than propagated.
	if err := d.RecordDelivery(ctx, delivery); err != nil {
		log.Errorf("unable to record the push delivery for notification %s: %s", notification.ID, err)
	}
}

// RecordDelivery appends one delivery attempt record to the audit log in its
// own transaction.
func (d *Dispatcher) RecordDelivery(ctx context.Context, delivery *model.Delivery) error {

	// Begin a database transaction.
	tx, err := d.database.Begin(ctx)
	if err != nil {
		return err
	}
	defer d.database.Rollback(tx) // nolint:errcheck

	// Store the delivery record.
	err = d.database.SaveDelivery(ctx, tx, delivery)
	if err != nil {
		return err
	}

	// Commit the transaction.
	return d.database.Commit(tx)
}
