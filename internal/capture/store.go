package capture

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const DefaultMaxEntries = 800

var (
	ErrEmptyProductCode    = errors.New("product code is required")
	ErrLocationRequired    = errors.New("a location must be entered before scanning in dynamic mode")
	ErrBatchLimitReached   = errors.New("batch limit reached, sync before scanning new products")
	ErrEntryNotFound       = errors.New("capture entry not found")
	ErrNoActiveSession     = errors.New("no active capture session")
	ErrSessionActive       = errors.New("a capture session is already active")
	ErrUnsyncedEntries     = errors.New("session has unsynced entries")
	ErrMissingControlBatch = errors.New("control batch id is required")
	ErrMissingArea         = errors.New("area is required")
)

// Entries only ever hold the pending state locally: a confirmed sync deletes them.
const SyncStatePending = "pending"

// Entry is one aggregated (product code, location) row of the active session.
type Entry struct {
	ID             int64
	SessionID      string
	ControlBatchID string
	ProductCode    string
	Area           string
	Location       string
	Quantity       int
	SyncState      string
	ScannedAt      time.Time
	UpdatedAt      time.Time
}

// Store is the durable offline store of a counting device.
// Uses SQLite with WAL mode so captured scans survive restarts.
type Store struct {
	db         *sql.DB
	maxEntries int
	now        func() time.Time
}

// Open creates or opens the capture database at path. maxEntries <= 0 uses
// DefaultMaxEntries.
func Open(path string, maxEntries int) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to capture database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply capture schema: %w", err)
	}
	if err := addColumnIfMissing(db, "capture_session", "last_synced_at", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to upgrade capture schema: %w", err)
	}

	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Store{db: db, maxEntries: maxEntries, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) MaxEntries() int { return s.maxEntries }

// StartSession persists sess as the active session.
func (s *Store) StartSession(ctx context.Context, sess Session) error {
	info := sess.Info()
	var location string
	if v, ok := sess.(FixedLocationSession); ok {
		location = strings.TrimSpace(v.Location)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM capture_session").Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrSessionActive
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO capture_session (id, mode, control_batch_id, area, location, tenant_id, actor_id, actor_name, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, modeOf(sess), info.ControlBatchID, info.Area, location,
		info.TenantID, info.Actor.ID, info.Actor.Name, info.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return tx.Commit()
}

// ActiveSession restores the persisted session with its variant.
func (s *Store) ActiveSession(ctx context.Context) (Session, error) {
	var (
		info         SessionInfo
		mode         string
		location     string
		startedAt    int64
		lastSyncedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, mode, control_batch_id, area, location, tenant_id, actor_id, actor_name, started_at, last_synced_at
		FROM capture_session LIMIT 1`,
	).Scan(&info.ID, &mode, &info.ControlBatchID, &info.Area, &location,
		&info.TenantID, &info.Actor.ID, &info.Actor.Name, &startedAt, &lastSyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}
	info.StartedAt = time.UnixMilli(startedAt)
	if lastSyncedAt > 0 {
		info.LastSyncedAt = time.UnixMilli(lastSyncedAt)
	}

	if mode == modeFixed {
		return FixedLocationSession{SessionInfo: info, Location: location}, nil
	}
	return DynamicLocationSession{SessionInfo: info}, nil
}

// EndSession removes the active session. Pending entries are discarded only
// when discard is true; otherwise ErrUnsyncedEntries is returned.
func (s *Store) EndSession(ctx context.Context, discard bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM scan_entries").Scan(&n); err != nil {
		return err
	}
	if n > 0 && !discard {
		return ErrUnsyncedEntries
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM scan_entries"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM capture_session"); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordScan adds one unit of productCode at the session's effective location.
// A repeated (product code, location) pair increments the existing entry.
func (s *Store) RecordScan(ctx context.Context, sess Session, productCode, scanLocation string) (Entry, error) {
	code := strings.TrimSpace(productCode)
	if code == "" {
		return Entry{}, ErrEmptyProductCode
	}
	location, err := EffectiveLocation(sess, scanLocation)
	if err != nil {
		return Entry{}, err
	}
	info := sess.Info()
	now := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM scan_entries WHERE session_id = ? AND product_code = ? AND location = ?",
		info.ID, code, location,
	).Scan(&id)

	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			"UPDATE scan_entries SET quantity = quantity + 1, updated_at = ? WHERE id = ?", now, id,
		); err != nil {
			return Entry{}, fmt.Errorf("failed to increment entry: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM scan_entries").Scan(&n); err != nil {
			return Entry{}, err
		}
		if n >= s.maxEntries {
			return Entry{}, ErrBatchLimitReached
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO scan_entries (session_id, control_batch_id, product_code, area, location, quantity, sync_state, scanned_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)`,
			info.ID, info.ControlBatchID, code, info.Area, location, SyncStatePending, now, now,
		)
		if err != nil {
			return Entry{}, fmt.Errorf("failed to insert entry: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return Entry{}, err
		}
	default:
		return Entry{}, err
	}

	entry, err := getEntry(ctx, tx, id)
	if err != nil {
		return Entry{}, err
	}
	return entry, tx.Commit()
}

// EditQuantity overwrites the quantity of an entry. Negative values are kept as
// corrections.
func (s *Store) EditQuantity(ctx context.Context, id int64, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE scan_entries SET quantity = ?, updated_at = ? WHERE id = ?",
		quantity, s.now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to edit quantity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// ListAll returns every entry in insertion order.
func (s *Store) ListAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+entryColumns+" FROM scan_entries ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scan_entries").Scan(&n)
	return n, err
}

// Clear deletes every entry. The session itself stays active. A sync uses
// ClearSynced instead, which only removes what the server confirmed.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM scan_entries"); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	return nil
}

const entryColumns = "id, session_id, control_batch_id, product_code, area, location, quantity, sync_state, scanned_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var (
		e                    Entry
		scannedAt, updatedAt int64
	)
	if err := r.Scan(&e.ID, &e.SessionID, &e.ControlBatchID, &e.ProductCode, &e.Area, &e.Location,
		&e.Quantity, &e.SyncState, &scannedAt, &updatedAt); err != nil {
		return Entry{}, err
	}
	e.ScannedAt = time.UnixMilli(scannedAt)
	e.UpdatedAt = time.UnixMilli(updatedAt)
	return e, nil
}

func getEntry(ctx context.Context, tx *sql.Tx, id int64) (Entry, error) {
	e, err := scanEntry(tx.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM scan_entries WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return e, err
}
