package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cyverse-de/notification-hub/model"
	"github.com/stretchr/testify/assert"
)

func TestGetChannelPreferences(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	mock.ExpectBegin()
	columns := []string{"user_id", "in_app_enabled", "push_enabled", "email_enabled", "marketing_enabled"}
	rows := sqlmock.NewRows(columns).AddRow("u1", true, false, true, false)
	mock.ExpectQuery("SELECT .* FROM user_preferences WHERE user_id =").
		WithArgs("u1").
		WillReturnRows(rows)
	mock.ExpectRollback()

	// Look up the preferences.
	client := NewClient(db)
	tx, err := client.Begin(ctx)
	assert.NoError(err, "unable to begin a transaction")
	preferences, err := client.GetChannelPreferences(ctx, tx, "u1")
	assert.NoError(err, "unexpected error occurred while looking up the preferences")
	assert.Equal("u1", preferences.UserID)
	assert.True(preferences.InAppEnabled)
	assert.False(preferences.PushEnabled)
	assert.True(preferences.EmailEnabled)
	assert.False(preferences.MarketingEnabled)
	_ = client.Rollback(tx)

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestGetChannelPreferencesDefaults(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations. A user with no stored preferences gets the
	// defaults rather than an error.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM user_preferences WHERE user_id =").
		WithArgs("u2").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	// Look up the preferences.
	client := NewClient(db)
	tx, err := client.Begin(ctx)
	assert.NoError(err, "unable to begin a transaction")
	preferences, err := client.GetChannelPreferences(ctx, tx, "u2")
	assert.NoError(err, "unexpected error occurred while looking up the preferences")
	assert.Equal(model.DefaultChannelPreferences("u2"), preferences)
	_ = client.Rollback(tx)

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestSaveChannelPreferences(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO user_preferences .* ON CONFLICT \\(user_id\\) DO UPDATE SET").
		WithArgs("u1", true, false, true, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	// Save the preferences.
	client := NewClient(db)
	tx, err := client.Begin(ctx)
	assert.NoError(err, "unable to begin a transaction")
	err = client.SaveChannelPreferences(ctx, tx, &model.ChannelPreferences{
		UserID:       "u1",
		InAppEnabled: true,
		EmailEnabled: true,
	})
	assert.NoError(err, "unexpected error occurred while saving the preferences")
	_ = client.Rollback(tx)

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}
