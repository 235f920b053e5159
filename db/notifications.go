package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/cyverse-de/notification-hub/model"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// notificationColumns lists the columns scanned into a model.Notification, in
// the order expected by scanNotification.
var notificationColumns = []string{
	"id",
	"tenant_id",
	"recipient_user_id",
	"actor_user_id",
	"notification_type",
	"title",
	"body",
	"deep_link",
	"data",
	"batch_key",
	"created_at",
	"read_at",
	"archived_at",
}

// nullableString converts an empty string to a NULL database value.
func nullableString(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// scanner is the subset of sql.Row and sql.Rows used by scanNotification.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanNotification scans a single notification row.
func scanNotification(row scanner) (*model.Notification, error) {
	var (
		notification model.Notification
		actorUserID  sql.NullString
		deepLink     sql.NullString
		data         []byte
		batchKey     sql.NullString
		readAt       sql.NullTime
		archivedAt   sql.NullTime
	)

	// Scan the row.
	err := row.Scan(
		&notification.ID,
		&notification.TenantID,
		&notification.RecipientUserID,
		&actorUserID,
		&notification.Type,
		&notification.Title,
		&notification.Body,
		&deepLink,
		&data,
		&batchKey,
		&notification.CreatedAt,
		&readAt,
		&archivedAt,
	)
	if err != nil {
		return nil, err
	}

	// Fill in the nullable fields.
	notification.ActorUserID = actorUserID.String
	notification.DeepLink = deepLink.String
	notification.BatchKey = batchKey.String
	if readAt.Valid {
		notification.ReadAt = &readAt.Time
	}
	if archivedAt.Valid {
		notification.ArchivedAt = &archivedAt.Time
	}
	if len(data) != 0 {
		if err := json.Unmarshal(data, &notification.Data); err != nil {
			return nil, err
		}
	}

	return &notification, nil
}

// listNotifications executes a prepared select builder and scans the results.
func listNotifications(ctx context.Context, tx *sql.Tx, builder sq.SelectBuilder) ([]*model.Notification, error) {

	// Build and execute the statement.
	statement, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Scan the result set.
	notifications := make([]*model.Notification, 0)
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notification)
	}
	return notifications, rows.Err()
}

// SaveNotification saves a single notification, filling in the generated
// identifier and creation timestamp.
func (c *Client) SaveNotification(ctx context.Context, tx *sql.Tx, notification *model.Notification) error {
	wrapMsg := "unable to save the notification"

	// Marshal the free-form payload.
	var data interface{}
	if notification.Data != nil {
		marshaled, err := json.Marshal(notification.Data)
		if err != nil {
			return errors.Wrap(err, wrapMsg)
		}
		data = marshaled
	}

	// Build the statement to insert the notification.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("notifications").
		Columns(
			"tenant_id",
			"recipient_user_id",
			"actor_user_id",
			"notification_type",
			"title",
			"body",
			"deep_link",
			"data",
			"batch_key").
		Values(
			notification.TenantID,
			notification.RecipientUserID,
			nullableString(notification.ActorUserID),
			notification.Type,
			notification.Title,
			notification.Body,
			nullableString(notification.DeepLink),
			data,
			nullableString(notification.BatchKey)).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the insert statement, scanning the generated values into the notification structure.
	row := tx.QueryRowContext(ctx, statement, args...)
	err = row.Scan(&notification.ID, &notification.CreatedAt)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// GetNotification looks up a single notification by its identifier. Archived
// notifications are still found by direct lookup.
func (c *Client) GetNotification(ctx context.Context, tx *sql.Tx, id string) (*model.Notification, error) {
	wrapMsg := "unable to look up the notification"

	// Build the query.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(notificationColumns...).
		From("notifications").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	notification, err := scanNotification(tx.QueryRowContext(ctx, statement, args...))
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return notification, nil
}

// ListNotifications returns the recipient's notifications, newest first,
// excluding archived entries. A tenant identifier narrows the listing to one
// tenant; an empty tenant identifier lists all of the recipient's
// notifications. A limit of zero disables pagination.
func (c *Client) ListNotifications(
	ctx context.Context,
	tx *sql.Tx,
	userID, tenantID string,
	limit, offset uint64,
) ([]*model.Notification, error) {
	wrapMsg := "unable to list notifications"

	// Build the query.
	builder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(notificationColumns...).
		From("notifications").
		Where(sq.Eq{"recipient_user_id": userID}).
		Where("archived_at IS NULL").
		OrderBy("created_at DESC")
	if tenantID != "" {
		builder = builder.Where(sq.Eq{"tenant_id": tenantID})
	}
	if limit > 0 {
		builder = builder.Limit(limit).Offset(offset)
	}

	// Execute the query and scan the results.
	notifications, err := listNotifications(ctx, tx, builder)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return notifications, nil
}

// ListNotificationsByBatchKey returns the recipient's notifications sharing a
// batch key, oldest first, so clients can expand a grouped entry.
func (c *Client) ListNotificationsByBatchKey(
	ctx context.Context,
	tx *sql.Tx,
	userID, batchKey string,
) ([]*model.Notification, error) {
	wrapMsg := "unable to list notifications by batch key"

	// Build the query.
	builder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(notificationColumns...).
		From("notifications").
		Where(sq.Eq{"recipient_user_id": userID}).
		Where(sq.Eq{"batch_key": batchKey}).
		OrderBy("created_at ASC")

	// Execute the query and scan the results.
	notifications, err := listNotifications(ctx, tx, builder)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return notifications, nil
}

// CountUnreadNotifications counts the recipient's notifications that have not
// been read or archived. An empty tenant identifier counts across all
// tenants.
func (c *Client) CountUnreadNotifications(ctx context.Context, tx *sql.Tx, userID, tenantID string) (int64, error) {
	wrapMsg := "unable to count unread notifications"
	var total int64

	// Build the statement to count the unread notifications.
	builder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("count(*)").
		From("notifications").
		Where(sq.Eq{"recipient_user_id": userID}).
		Where("read_at IS NULL").
		Where("archived_at IS NULL")
	if tenantID != "" {
		builder = builder.Where(sq.Eq{"tenant_id": tenantID})
	}
	statement, args, err := builder.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	err = tx.QueryRowContext(ctx, statement, args...).Scan(&total)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return total, nil
}

// MarkNotificationRead marks a notification as read. The update is scoped to
// the recipient and only applies to notifications that haven't been read yet,
// so repeated calls leave the original read timestamp in place. The number of
// rows affected is returned so callers can tell whether anything changed.
func (c *Client) MarkNotificationRead(ctx context.Context, tx *sql.Tx, userID, notificationID string) (int64, error) {
	wrapMsg := "unable to mark the notification as read"

	// Build the update statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update("notifications").
		Set("read_at", sq.Expr("now()")).
		Where(sq.Eq{"id": notificationID}).
		Where(sq.Eq{"recipient_user_id": userID}).
		Where("read_at IS NULL").
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the statement and report the number of rows affected.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return rowsAffected, nil
}

// MarkAllNotificationsRead marks all of the recipient's unread notifications
// in one tenant as read. An empty tenant identifier covers all tenants.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, tx *sql.Tx, userID, tenantID string) (int64, error) {
	wrapMsg := "unable to mark all notifications as read"

	// Build the update statement.
	builder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update("notifications").
		Set("read_at", sq.Expr("now()")).
		Where(sq.Eq{"recipient_user_id": userID}).
		Where("read_at IS NULL").
		Where("archived_at IS NULL")
	if tenantID != "" {
		builder = builder.Where(sq.Eq{"tenant_id": tenantID})
	}
	statement, args, err := builder.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the statement and report the number of rows affected.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return rowsAffected, nil
}

// ArchiveNotification archives a notification. Like MarkNotificationRead, the
// update is scoped to the recipient and repeated calls are no-ops.
func (c *Client) ArchiveNotification(ctx context.Context, tx *sql.Tx, userID, notificationID string) (int64, error) {
	wrapMsg := "unable to archive the notification"

	// Build the update statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update("notifications").
		Set("archived_at", sq.Expr("now()")).
		Where(sq.Eq{"id": notificationID}).
		Where(sq.Eq{"recipient_user_id": userID}).
		Where("archived_at IS NULL").
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the statement and report the number of rows affected.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return rowsAffected, nil
}
