// Package inbox is the query and mutation surface an API layer uses against a
// user's notification inbox. Every mutation pairs its database write with a
// real-time stream publish so open client connections see the change without
// polling. Mutations are idempotent and scoped to the owning recipient; a
// repeat that changes no rows publishes nothing.
package inbox

import (
	"context"
	"database/sql"

	"github.com/cyverse-de/notification-hub/model"
	"github.com/cyverse-de/notification-hub/stream"
	"github.com/pkg/errors"
)

// DatabaseClient describes the database operations the inbox uses.
type DatabaseClient interface {
	Begin(ctx context.Context) (*sql.Tx, error)
	Commit(tx *sql.Tx) error
	Rollback(tx *sql.Tx) error
	GetNotification(ctx context.Context, tx *sql.Tx, id string) (*model.Notification, error)
	ListNotifications(ctx context.Context, tx *sql.Tx, userID, tenantID string, limit, offset uint64) ([]*model.Notification, error)
	ListNotificationsByBatchKey(ctx context.Context, tx *sql.Tx, userID, batchKey string) ([]*model.Notification, error)
	CountUnreadNotifications(ctx context.Context, tx *sql.Tx, userID, tenantID string) (int64, error)
	MarkNotificationRead(ctx context.Context, tx *sql.Tx, userID, notificationID string) (int64, error)
	MarkAllNotificationsRead(ctx context.Context, tx *sql.Tx, userID, tenantID string) (int64, error)
	ArchiveNotification(ctx context.Context, tx *sql.Tx, userID, notificationID string) (int64, error)
}

// Inbox exposes a user's notification inbox.
type Inbox struct {
	database DatabaseClient
	stream   stream.Stream
}

// New creates a new inbox service.
func New(database DatabaseClient, liveStream stream.Stream) *Inbox {
	return &Inbox{
		database: database,
		stream:   liveStream,
	}
}

// inTransaction runs one operation inside its own database transaction.
func (i *Inbox) inTransaction(ctx context.Context, operation func(tx *sql.Tx) error) error {

	// Begin a database transaction.
	tx, err := i.database.Begin(ctx)
	if err != nil {
		return err
	}
	defer i.database.Rollback(tx) // nolint:errcheck

	// Run the operation.
	err = operation(tx)
	if err != nil {
		return err
	}

	// Commit the transaction.
	return i.database.Commit(tx)
}

// ListInbox returns one page of the user's notifications, newest first,
// excluding archived entries. An empty tenant identifier lists across all
// tenants; a limit of zero disables pagination.
func (i *Inbox) ListInbox(ctx context.Context, userID, tenantID string, limit, offset uint64) ([]*model.Notification, error) {
	wrapMsg := "unable to list the inbox"

	var notifications []*model.Notification
	err := i.inTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		notifications, err = i.database.ListNotifications(ctx, tx, userID, tenantID, limit, offset)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return notifications, nil
}

// ListBatch returns the user's notifications sharing a batch key, oldest
// first, so a client can expand a grouped entry.
func (i *Inbox) ListBatch(ctx context.Context, userID, batchKey string) ([]*model.Notification, error) {
	wrapMsg := "unable to list the notification batch"

	var notifications []*model.Notification
	err := i.inTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		notifications, err = i.database.ListNotificationsByBatchKey(ctx, tx, userID, batchKey)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return notifications, nil
}

// Get returns one notification by its identifier, archived or not.
func (i *Inbox) Get(ctx context.Context, id string) (*model.Notification, error) {
	wrapMsg := "unable to look up the notification"

	var notification *model.Notification
	err := i.inTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		notification, err = i.database.GetNotification(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return notification, nil
}

// UnreadCount returns the number of the user's notifications that are neither
// read nor archived.
func (i *Inbox) UnreadCount(ctx context.Context, userID, tenantID string) (int64, error) {
	wrapMsg := "unable to count unread notifications"

	var count int64
	err := i.inTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		count, err = i.database.CountUnreadNotifications(ctx, tx, userID, tenantID)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return count, nil
}

// MarkAsRead marks one of the user's notifications as read and tells the
// user's live connections about it. Marking an already-read notification, or
// one belonging to someone else, changes nothing and publishes nothing.
func (i *Inbox) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	wrapMsg := "unable to mark the notification as read"

	var rowsAffected int64
	err := i.inTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		rowsAffected, err = i.database.MarkNotificationRead(ctx, tx, userID, notificationID)
		return err
	})
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	if rowsAffected > 0 {
		i.stream.PublishRead(userID, notificationID)
	}
	return nil
}

// MarkAllAsRead marks all of the user's unread notifications as read and asks
// the user's live connections to refetch rather than enumerating every
// affected identifier.
func (i *Inbox) MarkAllAsRead(ctx context.Context, userID, tenantID string) error {
	wrapMsg := "unable to mark all notifications as read"

	var rowsAffected int64
	err := i.inTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		rowsAffected, err = i.database.MarkAllNotificationsRead(ctx, tx, userID, tenantID)
		return err
	})
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	if rowsAffected > 0 {
		i.stream.PublishRefresh(userID)
	}
	return nil
}

// Archive removes one of the user's notifications from their inbox listing
// and tells the user's live connections about it. The entry itself is kept
// and stays reachable by identifier.
func (i *Inbox) Archive(ctx context.Context, userID, notificationID string) error {
	wrapMsg := "unable to archive the notification"

	var rowsAffected int64
	err := i.inTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		rowsAffected, err = i.database.ArchiveNotification(ctx, tx, userID, notificationID)
		return err
	})
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	if rowsAffected > 0 {
		i.stream.PublishArchived(userID, notificationID)
	}
	return nil
}
