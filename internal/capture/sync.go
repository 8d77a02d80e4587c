package capture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultSyncLease bounds how long a crashed sync keeps other syncs out.
const DefaultSyncLease = 10 * time.Minute

var ErrSyncInProgress = errors.New("a sync is already running on this device")

// AcquireSyncLock claims the device-wide sync lease. The lease lives in the
// database file, so it also excludes syncs started by other processes. A lease
// older than lease is considered abandoned and taken over.
func (s *Store) AcquireSyncLock(ctx context.Context, lease time.Duration) (release func() error, err error) {
	if lease <= 0 {
		lease = DefaultSyncLease
	}
	owner := uuid.NewString()
	now := s.now()

	// a single upsert is atomic in SQLite, no explicit transaction needed
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_lock (id, owner, acquired_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET owner = excluded.owner, acquired_at = excluded.acquired_at
		WHERE sync_lock.acquired_at < ?`,
		owner, now.UnixMilli(), now.Add(-lease).UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim sync lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrSyncInProgress
	}

	return func() error {
		_, err := s.db.ExecContext(context.WithoutCancel(ctx), "DELETE FROM sync_lock WHERE owner = ?", owner)
		return err
	}, nil
}

// LastSyncedAt returns when the session's last fully confirmed sync ended, or
// the zero time.
func (s *Store) LastSyncedAt(ctx context.Context, sessionID string) (time.Time, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, "SELECT last_synced_at FROM capture_session WHERE id = ?", sessionID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNoActiveSession
	}
	if err != nil {
		return time.Time{}, err
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// ClearSynced removes the confirmed entries of a sync and records syncedAt as
// the end of the synced interval. sent is the snapshot that was delivered: an
// entry incremented since then keeps the difference instead of being deleted,
// and entries recorded after the snapshot are untouched.
func (s *Store) ClearSynced(ctx context.Context, sessionID string, sent []Entry, syncedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()
	for _, e := range sent {
		res, err := tx.ExecContext(ctx, "DELETE FROM scan_entries WHERE id = ? AND quantity = ?", e.ID, e.Quantity)
		if err != nil {
			return fmt.Errorf("failed to clear entry %d: %w", e.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE scan_entries SET quantity = quantity - ?, updated_at = ? WHERE id = ?", e.Quantity, now, e.ID,
		); err != nil {
			return fmt.Errorf("failed to keep unsent quantity of entry %d: %w", e.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE capture_session SET last_synced_at = ? WHERE id = ?", syncedAt.UnixMilli(), sessionID,
	); err != nil {
		return fmt.Errorf("failed to record sync time: %w", err)
	}
	return tx.Commit()
}

// addColumnIfMissing upgrades databases created before a column existed.
func addColumnIfMissing(db *sql.DB, table, column, definition string) error {
	var n int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column,
	).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}
