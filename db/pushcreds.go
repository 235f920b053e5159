package db

import (
	"context"
	"database/sql"

	"github.com/cyverse-de/notification-hub/model"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// SavePushCredential stores a device registration for push delivery. Saving a
// token that is already registered is a no-op.
func (c *Client) SavePushCredential(ctx context.Context, tx *sql.Tx, credential *model.PushCredential) error {
	wrapMsg := "unable to save the push credential"

	// Build the insert statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("push_credentials").
		Columns("user_id", "platform", "token").
		Values(credential.UserID, credential.Platform, credential.Token).
		Suffix("ON CONFLICT (user_id, platform, token) DO NOTHING").
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

// DeletePushCredentials removes all of a user's device registrations for one
// platform, returning the number of registrations removed.
func (c *Client) DeletePushCredentials(ctx context.Context, tx *sql.Tx, userID, platform string) (int64, error) {
	wrapMsg := "unable to delete the push credentials"

	// Build the delete statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Delete("push_credentials").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"platform": platform}).
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

// ListPushTokens returns the device tokens registered for a user, oldest
// first.
func (c *Client) ListPushTokens(ctx context.Context, tx *sql.Tx, userID string) ([]string, error) {
	wrapMsg := "unable to list the push tokens"

	// Build the query.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("token").
		From("push_credentials").
		Where(sq.Eq{"user_id": userID}).
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
	tokens := make([]string, 0)
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return tokens, nil
}

// SavePushSubscriber records the profile information sent to the push
// provider when a user is identified, replacing any existing profile.
func (c *Client) SavePushSubscriber(ctx context.Context, tx *sql.Tx, userID, email, name string) error {
	wrapMsg := "unable to save the push subscriber"

	// Build the upsert statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("push_subscribers").
		Columns("user_id", "email", "name").
		Values(userID, email, name).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET " +
			"email = EXCLUDED.email, " +
			"name = EXCLUDED.name, " +
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
