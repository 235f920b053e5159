package db

import (
	"context"
	"database/sql"

	"github.com/cyverse-de/notification-hub/model"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// SaveDelivery appends one delivery attempt record to the audit log, filling
// in the generated identifier and creation timestamp. Audit records are never
// updated; a new attempt gets a new record.
func (c *Client) SaveDelivery(ctx context.Context, tx *sql.Tx, delivery *model.Delivery) error {
	wrapMsg := "unable to save the delivery record"

	// Build the statement to insert the delivery record.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("notification_deliveries").
		Columns(
			"notification_id",
			"channel",
			"status",
			"provider_message_id",
			"error").
		Values(
			delivery.NotificationID,
			delivery.Channel,
			delivery.Status,
			nullableString(delivery.ProviderMessageID),
			nullableString(delivery.Error)).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the insert statement, scanning the generated values into the delivery structure.
	row := tx.QueryRowContext(ctx, statement, args...)
	err = row.Scan(&delivery.ID, &delivery.CreatedAt)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// ListDeliveries returns the delivery attempt records for one notification,
// oldest first.
func (c *Client) ListDeliveries(ctx context.Context, tx *sql.Tx, notificationID string) ([]*model.Delivery, error) {
	wrapMsg := "unable to list delivery records"

	// Build the query.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("id", "notification_id", "channel", "status", "provider_message_id", "error", "created_at").
		From("notification_deliveries").
		Where(sq.Eq{"notification_id": notificationID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Execute the query.
	rows, err := tx.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	defer rows.Close()

	// Scan the result set.
	deliveries := make([]*model.Delivery, 0)
	for rows.Next() {
		var (
			delivery          model.Delivery
			providerMessageID sql.NullString
			errorDetail       sql.NullString
		)
		err = rows.Scan(
			&delivery.ID,
			&delivery.NotificationID,
			&delivery.Channel,
			&delivery.Status,
			&providerMessageID,
			&errorDetail,
			&delivery.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		delivery.ProviderMessageID = providerMessageID.String
		delivery.Error = errorDetail.String
		deliveries = append(deliveries, &delivery)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return deliveries, nil
}
