// internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"pgbroker/internal/model"
)

type Store struct {
	DB  *sql.DB
	DSN string
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	return &Store{DB: db, DSN: dsn}, nil
}

// Migrate creates both tables, their covering indexes, and the insert trigger
// that notifies on the new row's channel key. NOTIFY is transactional in
// Postgres, so listeners only see the signal after the inserting transaction
// commits.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS broker_message (
			id UUID PRIMARY KEY,
			channel_key TEXT NOT NULL,
			payload BYTEA NOT NULL,
			expire TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS broker_message_channel_key_expire_idx
			ON broker_message (channel_key, expire)`,
		`CREATE INDEX IF NOT EXISTS broker_message_expire_idx
			ON broker_message (expire)`,
		`CREATE TABLE IF NOT EXISTS broker_group_membership (
			id UUID PRIMARY KEY,
			group_key TEXT NOT NULL,
			channel TEXT NOT NULL,
			expire TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS broker_group_membership_group_key_expire_idx
			ON broker_group_membership (group_key, expire)`,
		`CREATE INDEX IF NOT EXISTS broker_group_membership_group_key_channel_idx
			ON broker_group_membership (group_key, channel)`,
		`CREATE INDEX IF NOT EXISTS broker_group_membership_expire_idx
			ON broker_group_membership (expire)`,
		`CREATE OR REPLACE FUNCTION broker_message_notify() RETURNS TRIGGER AS $$
			BEGIN
				PERFORM pg_notify(NEW.channel_key, NEW.id::text);
				RETURN NEW;
			END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS broker_message_notify_insert ON broker_message`,
		`CREATE TRIGGER broker_message_notify_insert
			AFTER INSERT ON broker_message
			FOR EACH ROW EXECUTE FUNCTION broker_message_notify()`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

// InsertMessage stores one pending message row. created_at is assigned by the
// database so the per-channel delivery order does not depend on producer
// clocks. The insert trigger fires the notification once the surrounding
// transaction commits.
func (s *Store) InsertMessage(ctx context.Context, m *model.Message) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO broker_message (id, channel_key, payload, expire)
		VALUES ($1, $2, $3, $4)
	`, m.ID, m.ChannelKey, m.Payload, m.Expire)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ClaimOldest locks, reads and deletes the oldest non-expired message for the
// channel key in a single transaction. Rows locked by a concurrent claimer
// are skipped, so claimers never block each other or hand out the same row
// twice. Returns (nil, nil) when nothing is claimable.
func (s *Store) ClaimOldest(ctx context.Context, channelKey string, now time.Time) (*model.Message, error) {
	return s.claim(ctx, `
		SELECT id, channel_key, payload, expire, created_at
		FROM broker_message
		WHERE channel_key = $1 AND expire >= $2
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, channelKey, now)
}

// ClaimByID claims one specific row, typically the one named by a
// notification payload. An expired row is treated as not claimable.
func (s *Store) ClaimByID(ctx context.Context, id uuid.UUID, now time.Time) (*model.Message, error) {
	return s.claim(ctx, `
		SELECT id, channel_key, payload, expire, created_at
		FROM broker_message
		WHERE id = $1 AND expire >= $2
		FOR UPDATE SKIP LOCKED
	`, id, now)
}

func (s *Store) claim(ctx context.Context, query string, args ...interface{}) (*model.Message, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim tx: %w", err)
	}
	defer tx.Rollback()

	var m model.Message
	row := tx.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&m.ID, &m.ChannelKey, &m.Payload, &m.Expire, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim query failed: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM broker_message WHERE id = $1`, m.ID); err != nil {
		return nil, fmt.Errorf("claim delete failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim commit failed: %w", err)
	}
	return &m, nil
}

// AddGroupMembership inserts one membership row. Adds are not idempotent:
// calling twice leaves two rows.
func (s *Store) AddGroupMembership(ctx context.Context, gm *model.GroupMembership) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO broker_group_membership (id, group_key, channel, expire)
		VALUES ($1, $2, $3, $4)
	`, gm.ID, gm.GroupKey, gm.Channel, gm.Expire)
	if err != nil {
		return fmt.Errorf("failed to insert group membership: %w", err)
	}
	return nil
}

// RemoveGroupMembership deletes every row matching the pair and reports how
// many were removed. Zero matches is not an error.
func (s *Store) RemoveGroupMembership(ctx context.Context, groupKey, channel string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM broker_group_membership
		WHERE group_key = $1 AND channel = $2
	`, groupKey, channel)
	if err != nil {
		return 0, fmt.Errorf("failed to delete group membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// GroupChannels returns the channel names of all non-expired members,
// duplicates included.
func (s *Store) GroupChannels(ctx context.Context, groupKey string, now time.Time) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT channel
		FROM broker_group_membership
		WHERE group_key = $1 AND expire >= $2
	`, groupKey, now)
	if err != nil {
		return nil, fmt.Errorf("group query failed: %w", err)
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var channel string
		if err := rows.Scan(&channel); err != nil {
			return nil, fmt.Errorf("group scan failed: %w", err)
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

// Flush removes every message and membership row. It cannot retract
// notifications already queued by Postgres; receivers woken by one will
// simply find nothing to claim.
func (s *Store) Flush(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM broker_group_membership`); err != nil {
		return fmt.Errorf("failed to flush group memberships: %w", err)
	}
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM broker_message`); err != nil {
		return fmt.Errorf("failed to flush messages: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredMessages(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM broker_message WHERE expire < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired messages: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteExpiredMemberships(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM broker_group_membership WHERE expire < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired memberships: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.DB.Close()
}
