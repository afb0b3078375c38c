package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storeforge/storeforge/internal/model"

	"modernc.org/sqlite"
)

const createStoresTable = `
CREATE TABLE IF NOT EXISTS stores (
    store_id                 TEXT PRIMARY KEY,
    name                     TEXT NOT NULL,
    status                   TEXT NOT NULL,
    status_message           TEXT NOT NULL DEFAULT '',
    url                      TEXT NOT NULL DEFAULT '',
    admin_url                TEXT NOT NULL DEFAULT '',
    namespace                TEXT NOT NULL DEFAULT '',
    error                    TEXT NOT NULL DEFAULT '',
    owner_id                 TEXT NOT NULL DEFAULT '',
    created_at               DATETIME NOT NULL,
    updated_at               DATETIME NOT NULL,
    provisioning_started_at  DATETIME,
    provisioning_deadline    DATETIME
)`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS store_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    store_id   TEXT NOT NULL,
    event_type TEXT NOT NULL,
    message    TEXT NOT NULL,
    severity   TEXT NOT NULL DEFAULT 'info',
    created_at DATETIME NOT NULL
)`

const createAuditTable = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    TEXT NOT NULL,
    action     TEXT NOT NULL,
    store_id   TEXT NOT NULL,
    store_name TEXT NOT NULL,
    ip_address TEXT NOT NULL DEFAULT '',
    metadata   TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL
)`

const createEventsIndex = `
CREATE INDEX IF NOT EXISTS idx_store_events_store_id ON store_events (store_id)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createStoresTable, createEventsTable, createAuditTable, createEventsIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migration: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const storeColumns = `store_id, name, status, status_message, url, admin_url,
	namespace, error, owner_id, created_at, updated_at,
	provisioning_started_at, provisioning_deadline`

func scanStore(row interface{ Scan(...any) error }) (*model.Store, error) {
	st := &model.Store{}
	err := row.Scan(
		&st.ID, &st.Name, &st.Status, &st.StatusMessage, &st.URL, &st.AdminURL,
		&st.Namespace, &st.Error, &st.OwnerID, &st.CreatedAt, &st.UpdatedAt,
		&st.ProvisioningStartedAt, &st.ProvisioningDeadline,
	)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// CreateStore inserts a new store record.
func (s *SQLiteStore) CreateStore(ctx context.Context, st *model.Store) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stores (
			store_id, name, status, status_message, url, admin_url,
			namespace, error, owner_id, created_at, updated_at,
			provisioning_started_at, provisioning_deadline
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Name, st.Status, st.StatusMessage, st.URL, st.AdminURL,
		st.Namespace, st.Error, st.OwnerID, st.CreatedAt, st.UpdatedAt,
		st.ProvisioningStartedAt, st.ProvisioningDeadline,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert store: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite primary key conflict.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		// 1555 = SQLITE_CONSTRAINT_PRIMARYKEY, 2067 = SQLITE_CONSTRAINT_UNIQUE
		return se.Code() == 1555 || se.Code() == 2067
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetStore retrieves a store by id.
func (s *SQLiteStore) GetStore(ctx context.Context, id string) (*model.Store, error) {
	st, err := scanStore(s.db.QueryRowContext(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE store_id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get store: %w", err)
	}
	return st, nil
}

// ListStores returns all non-deleted stores ordered by creation time,
// newest first.
func (s *SQLiteStore) ListStores(ctx context.Context) ([]*model.Store, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE status != ? ORDER BY created_at DESC`,
		model.StatusDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()
	return collectStores(rows)
}

// ListTimedOut returns stores still provisioning whose deadline has passed.
func (s *SQLiteStore) ListTimedOut(ctx context.Context, now time.Time) ([]*model.Store, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+storeColumns+` FROM stores
		WHERE status = ? AND provisioning_deadline IS NOT NULL AND provisioning_deadline < ?`,
		model.StatusProvisioning, now,
	)
	if err != nil {
		return nil, fmt.Errorf("list timed out stores: %w", err)
	}
	defer rows.Close()
	return collectStores(rows)
}

func collectStores(rows *sql.Rows) ([]*model.Store, error) {
	var stores []*model.Store
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stores: %w", err)
	}
	return stores, nil
}

// buildStatusUpdate assembles the SET clause for a partial status update.
// Only fields provided in upd are touched; updated_at is always refreshed.
func buildStatusUpdate(status string, upd StatusUpdate) (string, []any) {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{status, time.Now().UTC()}

	if upd.StatusMessage != nil {
		sets = append(sets, "status_message = ?")
		args = append(args, *upd.StatusMessage)
	}
	if upd.URL != nil {
		sets = append(sets, "url = ?")
		args = append(args, *upd.URL)
	}
	if upd.AdminURL != nil {
		sets = append(sets, "admin_url = ?")
		args = append(args, *upd.AdminURL)
	}
	if upd.Namespace != nil {
		sets = append(sets, "namespace = ?")
		args = append(args, *upd.Namespace)
	}
	if upd.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *upd.Error)
	}

	return strings.Join(sets, ", "), args
}

// UpdateStatus sets the status unconditionally and applies the partial update.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id, status string, upd StatusUpdate) error {
	setClause, args := buildStatusUpdate(status, upd)
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE stores SET "+setClause+" WHERE store_id = ?", args...,
	)
	if err != nil {
		return fmt.Errorf("update store status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatusFrom sets the status only if the row's current status equals
// from. The row-level predicate makes the reaper idempotent and keeps a slow
// pipeline from resurrecting a store the reaper already failed.
func (s *SQLiteStore) UpdateStatusFrom(ctx context.Context, id, from, to string, upd StatusUpdate) (bool, error) {
	// from == to is a guarded in-place update (e.g. a progress message that
	// must not touch a row another writer already moved on).
	if from != to && !model.ValidTransition(from, to) {
		return false, ErrInvalidTransition
	}

	setClause, args := buildStatusUpdate(to, upd)
	args = append(args, id, from)

	result, err := s.db.ExecContext(ctx,
		"UPDATE stores SET "+setClause+" WHERE store_id = ? AND status = ?", args...,
	)
	if err != nil {
		return false, fmt.Errorf("update store status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return affected > 0, nil
}

// CountActive counts stores that are provisioning or ready. Used to enforce
// the global active-store ceiling.
func (s *SQLiteStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM stores WHERE status IN (?, ?)",
		model.StatusProvisioning, model.StatusReady,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active stores: %w", err)
	}
	return n, nil
}

// CountOwned counts a caller's non-deleted stores. Used for per-caller quota.
func (s *SQLiteStore) CountOwned(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM stores WHERE owner_id = ? AND status != ?",
		ownerID, model.StatusDeleted,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count owned stores: %w", err)
	}
	return n, nil
}

// AppendEvent inserts a lifecycle event. Events are append-only.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *model.Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO store_events (store_id, event_type, message, severity, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ev.StoreID, ev.Type, ev.Message, ev.Severity, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		ev.ID = id
	}
	return nil
}

// ListEvents returns a store's events in insertion order.
func (s *SQLiteStore) ListEvents(ctx context.Context, storeID string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, store_id, event_type, message, severity, created_at
		FROM store_events WHERE store_id = ? ORDER BY id ASC`, storeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.StoreID, &ev.Type, &ev.Message, &ev.Severity, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ListActivity returns the most recent events across all stores, newest
// first, with the owning store's display name attached.
func (s *SQLiteStore) ListActivity(ctx context.Context, limit int) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT se.id, se.store_id, COALESCE(s.name, ''), se.event_type, se.message, se.severity, se.created_at
		FROM store_events se
		LEFT JOIN stores s ON se.store_id = s.store_id
		ORDER BY se.id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.StoreID, &ev.StoreName, &ev.Type, &ev.Message, &ev.Severity, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return events, nil
}

// AppendAudit inserts an audit log entry.
func (s *SQLiteStore) AppendAudit(ctx context.Context, entry *model.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Metadata == "" {
		entry.Metadata = "{}"
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (user_id, action, store_id, store_name, ip_address, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID, entry.Action, entry.StoreID, entry.StoreName,
		entry.IPAddress, entry.Metadata, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// ListAudit returns audit entries matching the filter, newest first.
func (s *SQLiteStore) ListAudit(ctx context.Context, f AuditFilter) ([]model.AuditEntry, error) {
	query := `SELECT id, user_id, action, store_id, store_name, ip_address, metadata, created_at
		FROM audit_logs WHERE 1=1`
	var args []any

	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}
	if !f.From.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, f.To)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.StoreID, &e.StoreName, &e.IPAddress, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// Stats returns aggregate counts over non-deleted stores plus the average
// provisioning duration of stores that reached ready.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := &Stats{}
	err = tx.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COUNT(CASE WHEN status = ? THEN 1 END),
			COUNT(CASE WHEN status IN (?, ?) THEN 1 END),
			COUNT(CASE WHEN status = ? THEN 1 END)
		FROM stores WHERE status != ?`,
		model.StatusReady, model.StatusProvisioning, model.StatusDeleting,
		model.StatusFailed, model.StatusDeleted,
	).Scan(&stats.Total, &stats.Ready, &stats.Provisioning, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("count stores: %w", err)
	}

	var avg sql.NullFloat64
	err = tx.QueryRowContext(ctx,
		`SELECT AVG((julianday(updated_at) - julianday(created_at)) * 86400.0)
		FROM stores WHERE status = ?`, model.StatusReady,
	).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("average provisioning duration: %w", err)
	}
	if avg.Valid {
		stats.AvgProvisionSecs = avg.Float64
	}

	return stats, nil
}
