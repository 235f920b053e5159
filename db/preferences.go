package db

import (
	"context"
	"database/sql"

	"github.com/cyverse-de/notification-hub/model"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// GetChannelPreferences returns the user's delivery channel preferences.
// Users who have never saved any preferences get the defaults.
func (c *Client) GetChannelPreferences(ctx context.Context, tx *sql.Tx, userID string) (*model.ChannelPreferences, error) {
	wrapMsg := "unable to look up the channel preferences"

	// Build the query.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("user_id", "in_app_enabled", "push_enabled", "email_enabled", "marketing_enabled").
		From("user_preferences").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Query the database, falling back to the defaults when no row exists.
	var preferences model.ChannelPreferences
	row := tx.QueryRowContext(ctx, statement, args...)
	err = row.Scan(
		&preferences.UserID,
		&preferences.InAppEnabled,
		&preferences.PushEnabled,
		&preferences.EmailEnabled,
		&preferences.MarketingEnabled,
	)
	if err == sql.ErrNoRows {
		return model.DefaultChannelPreferences(userID), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return &preferences, nil
}

// SaveChannelPreferences stores the user's delivery channel preferences,
// replacing any existing ones.
func (c *Client) SaveChannelPreferences(ctx context.Context, tx *sql.Tx, preferences *model.ChannelPreferences) error {
	wrapMsg := "unable to save the channel preferences"

	// Build the upsert statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("user_preferences").
		Columns("user_id", "in_app_enabled", "push_enabled", "email_enabled", "marketing_enabled").
		Values(
			preferences.UserID,
			preferences.InAppEnabled,
			preferences.PushEnabled,
			preferences.EmailEnabled,
			preferences.MarketingEnabled).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET " +
			"in_app_enabled = EXCLUDED.in_app_enabled, " +
			"push_enabled = EXCLUDED.push_enabled, " +
			"email_enabled = EXCLUDED.email_enabled, " +
			"marketing_enabled = EXCLUDED.marketing_enabled, " +
			"updated_at = now()").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	_, err = tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}
