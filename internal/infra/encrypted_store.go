package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	storeDBName   = "focuslock.db"
	schemaVersion = "1"
	busyTimeoutMs = 5000
)

// EncryptedStore implements domain.SessionRepository and domain.HistoryRepository
// using a SQLCipher encrypted SQLite database. Every write is one transaction,
// so a snapshot is committed entirely or not at all.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted store in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	// Immediate transactions take the write lock up front so that two processes
	// updating the snapshot serialize instead of failing on upgrade.
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_busy_timeout=%d&_txlock=immediate",
		dbPath, keyHex, busyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Verify encryption works by running a query
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &EncryptedStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

// OpenStore ensures the key exists and opens the store in dataDir.
func OpenStore(dataDir string) (*EncryptedStore, error) {
	key, err := EnsureKey(NewFileKeyProvider(dataDir))
	if err != nil {
		return nil, err
	}
	return NewEncryptedStore(dataDir, key)
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		session_id TEXT NOT NULL DEFAULT '',
		locked INTEGER NOT NULL DEFAULT 0,
		end_time_ms INTEGER NOT NULL DEFAULT 0,
		total_duration_ms INTEGER NOT NULL DEFAULT 0,
		settled_session_id TEXT NOT NULL DEFAULT '',
		lifetime_usage_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS allowed_apps (
		app_id TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS session_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp_ms INTEGER NOT NULL,
		duration_minutes INTEGER NOT NULL,
		allowed_apps TEXT NOT NULL,
		display_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_session_history_ts ON session_history (timestamp_ms);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`, schemaVersion)
	return err
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// --- domain.SessionRepository implementation ---

// Load returns the current snapshot, or an empty unlocked one.
func (s *EncryptedStore) Load(ctx context.Context) (domain.SessionSnapshot, error) {
	return loadSnapshot(ctx, s.db)
}

func loadSnapshot(ctx context.Context, q queryer) (domain.SessionSnapshot, error) {
	var snap domain.SessionSnapshot
	var locked int
	err := q.QueryRowContext(ctx, `
		SELECT session_id, locked, end_time_ms, total_duration_ms, settled_session_id, lifetime_usage_ms
		FROM session_state WHERE id = 1`).
		Scan(&snap.SessionID, &locked, &snap.EndTimeMs, &snap.TotalDurationMs,
			&snap.SettledSessionID, &snap.LifetimeUsageMs)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.SessionSnapshot{}, fmt.Errorf("failed to read session state: %w", err)
	}
	snap.Locked = locked != 0

	rows, err := q.QueryContext(ctx, `SELECT app_id FROM allowed_apps ORDER BY app_id`)
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("failed to read allowed apps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var app string
		if err := rows.Scan(&app); err != nil {
			return domain.SessionSnapshot{}, err
		}
		snap.AllowedApps = append(snap.AllowedApps, domain.AppID(app))
	}
	return snap, rows.Err()
}

// Update applies fn to the snapshot inside one transaction.
func (s *EncryptedStore) Update(ctx context.Context, fn func(*domain.SessionSnapshot) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap, err := loadSnapshot(ctx, tx)
	if err != nil {
		return err
	}
	if err := fn(&snap); err != nil {
		return err
	}

	locked := 0
	if snap.Locked {
		locked = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO session_state
			(id, session_id, locked, end_time_ms, total_duration_ms, settled_session_id, lifetime_usage_ms)
		VALUES (1, ?, ?, ?, ?, ?, ?)`,
		snap.SessionID, locked, snap.EndTimeMs, snap.TotalDurationMs, snap.SettledSessionID, snap.LifetimeUsageMs)
	if err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM allowed_apps`); err != nil {
		return fmt.Errorf("failed to write allowed apps: %w", err)
	}
	for _, app := range domain.NewAllowSet(snap.AllowedApps...).Sorted() {
		if _, err := tx.ExecContext(ctx, `INSERT INTO allowed_apps (app_id) VALUES (?)`, string(app)); err != nil {
			return fmt.Errorf("failed to write allowed apps: %w", err)
		}
	}

	return tx.Commit()
}

// --- domain.HistoryRepository implementation ---

// Append inserts rec and evicts everything beyond the newest limit records.
func (s *EncryptedStore) Append(ctx context.Context, rec domain.SessionRecord, limit int) error {
	apps, err := json.Marshal(rec.AllowedApps)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_history (timestamp_ms, duration_minutes, allowed_apps, display_date)
		VALUES (?, ?, ?, ?)`,
		rec.TimestampMs, rec.DurationMinutes, string(apps), rec.DisplayDate)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM session_history WHERE id NOT IN (
			SELECT id FROM session_history ORDER BY timestamp_ms DESC, id DESC LIMIT ?
		)`, limit)
	if err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}

	return tx.Commit()
}

// List returns history records newest first.
func (s *EncryptedStore) List(ctx context.Context) ([]domain.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp_ms, duration_minutes, allowed_apps, display_date
		FROM session_history ORDER BY timestamp_ms DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.SessionRecord
	for rows.Next() {
		var rec domain.SessionRecord
		var apps string
		if err := rows.Scan(&rec.TimestampMs, &rec.DurationMinutes, &apps, &rec.DisplayDate); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(apps), &rec.AllowedApps); err != nil {
			return nil, fmt.Errorf("corrupt history record %d: %w", rec.TimestampMs, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteByTimestamp removes records with the given timestamp.
func (s *EncryptedStore) DeleteByTimestamp(ctx context.Context, timestampMs int64) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM session_history WHERE timestamp_ms = ?`, timestampMs)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Clear removes all history records.
func (s *EncryptedStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_history`)
	return err
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure EncryptedStore implements both repositories.
var _ domain.SessionRepository = (*EncryptedStore)(nil)
var _ domain.HistoryRepository = (*EncryptedStore)(nil)
