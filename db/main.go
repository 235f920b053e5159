package db

import (
	"context"
	"database/sql"

	"github.com/cyverse-de/dbutil"
	"github.com/pkg/errors"
)

// InitDatabase establishes a database connection and verifies that the database can be reached.
func InitDatabase(driverName, databaseURI string) (*sql.DB, error) {
	wrapMsg := "unable to initialize the database"

	// Create a database connector to establish the connection.
	connector, err := dbutil.NewDefaultConnector("1m")
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Establish the database connection.
	db, err := connector.Connect(driverName, databaseURI)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return db, nil
}

// Client provides access to the notification database. Callers begin a
// transaction, pass it to the operation methods, and commit or roll back when
// they're done.
type Client struct {
	db *sql.DB
}

// NewClient creates a new database client.
func NewClient(db *sql.DB) *Client {
	return &Client{db: db}
}

// Begin starts a new database transaction.
func (c *Client) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to begin a database transaction")
	}
	return tx, nil
}

// Commit commits a database transaction.
func (c *Client) Commit(tx *sql.Tx) error {
	err := tx.Commit()
	if err != nil {
		return errors.Wrap(err, "unable to commit the database transaction")
	}
	return nil
}

// Rollback rolls back a database transaction. Rolling back a transaction that
// was already committed is a no-op.
func (c *Client) Rollback(tx *sql.Tx) error {
	err := tx.Rollback()
	if err != nil && err != sql.ErrTxDone {
		return errors.Wrap(err, "unable to roll back the database transaction")
	}
	return nil
}
