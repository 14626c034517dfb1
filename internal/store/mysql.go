package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Schema creates the table backing MySQLStore.
const Schema = `CREATE TABLE IF NOT EXISTS active_bills (
  user_id    BIGINT      NOT NULL PRIMARY KEY,
  bill_id    BIGINT      NOT NULL,
  expires_at DATETIME    NULL,
  updated_at DATETIME    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`

// MySQLStore keeps one row per user in active_bills.  Expired rows read as
// missing.
type MySQLStore struct {
	DB  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewMySQLStore(db *sql.DB, ttl time.Duration) *MySQLStore {
	return &MySQLStore{DB: db, ttl: ttl, now: time.Now}
}

// Migrate creates the table when it does not exist yet.
func (s *MySQLStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("store: create active_bills: %w", err)
	}
	return nil
}

func (s *MySQLStore) Save(ctx context.Context, userID, billID int64) error {
	var exp sql.NullTime
	if t := expiry(s.now().UTC(), s.ttl); !t.IsZero() {
		exp = sql.NullTime{Time: t, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO active_bills (user_id, bill_id, expires_at) VALUES (?,?,?) "+
			"ON DUPLICATE KEY UPDATE bill_id=VALUES(bill_id), expires_at=VALUES(expires_at)",
		userID, billID, exp)
	if err != nil {
		return fmt.Errorf("store: mysql save: %w", err)
	}
	return nil
}

func (s *MySQLStore) Load(ctx context.Context, userID int64) (int64, error) {
	var (
		billID int64
		exp    sql.NullTime
	)
	err := s.DB.QueryRowContext(ctx,
		"SELECT bill_id, expires_at FROM active_bills WHERE user_id=? LIMIT 1",
		userID).Scan(&billID, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("store: mysql load: %w", err)
	}
	if exp.Valid && s.now().UTC().After(exp.Time) {
		return 0, ErrNotFound
	}
	return billID, nil
}

func (s *MySQLStore) Delete(ctx context.Context, userID int64) error {
	if _, err := s.DB.ExecContext(ctx, "DELETE FROM active_bills WHERE user_id=?", userID); err != nil {
		return fmt.Errorf("store: mysql delete: %w", err)
	}
	return nil
}
