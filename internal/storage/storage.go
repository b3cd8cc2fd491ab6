package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kioskworks/boothd/internal/debug"
)

// DB wraps the sqlite connection holding session history and the
// upload queue. Slot photos are keyed by (session, slot) so a retake
// overwrites its row instead of appending.
type DB struct {
	*sql.DB
}

// InitDB opens (creating if needed) the session store.
func InitDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	// WAL keeps the upload worker's reads from blocking the
	// orchestrator's writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	debug.Info("Session store ready at %s", dbPath)
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		event_id TEXT,
		slots_required INTEGER NOT NULL,
		started_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS slot_photos (
		session_id TEXT NOT NULL,
		slot INTEGER NOT NULL,
		file_path TEXT NOT NULL,
		captured_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, slot),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS outputs (
		session_id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		composed_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS upload_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		event_name TEXT,
		file_path TEXT NOT NULL,
		queued_at DATETIME NOT NULL,
		sent_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_upload_pending ON upload_queue(sent_at) WHERE sent_at IS NULL;
	`
	_, err := db.Exec(schema)
	return err
}

// CreateSession records a new session. Called lazily at the first
// saved slot, so zero-slot aborts never reach the store.
func (db *DB) CreateSession(id, templateID, eventID string, slotsRequired uint, startedAt time.Time) error {
	_, err := db.Exec(
		`INSERT INTO sessions (id, template_id, event_id, slots_required, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, templateID, eventID, slotsRequired, startedAt,
	)
	return err
}

// SavePhoto upserts one slot photo; retakes replace the existing row.
func (db *DB) SavePhoto(sessionID string, slot uint, path string, capturedAt time.Time) error {
	_, err := db.Exec(
		`INSERT INTO slot_photos (session_id, slot, file_path, captured_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, slot) DO UPDATE SET file_path=excluded.file_path, captured_at=excluded.captured_at`,
		sessionID, slot, path, capturedAt,
	)
	return err
}

// SaveOutput records the composed artifact for a session.
func (db *DB) SaveOutput(sessionID, path string, composedAt time.Time) error {
	_, err := db.Exec(
		`INSERT INTO outputs (session_id, file_path, composed_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET file_path=excluded.file_path, composed_at=excluded.composed_at`,
		sessionID, path, composedAt,
	)
	return err
}

// SessionPhotos returns the ordered slot photo paths for a session.
func (db *DB) SessionPhotos(sessionID string) ([]string, error) {
	rows, err := db.Query(
		`SELECT file_path FROM slot_photos WHERE session_id = ? ORDER BY slot`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// UploadJob is one queued artifact awaiting delivery.
type UploadJob struct {
	ID        int64
	SessionID string
	EventName string
	FilePath  string
}

// Enqueue queues one artifact per row for asynchronous delivery.
func (db *DB) Enqueue(sessionID string, paths []string, eventName string) error {
	now := time.Now()
	for _, p := range paths {
		if _, err := db.Exec(
			`INSERT INTO upload_queue (session_id, event_name, file_path, queued_at) VALUES (?, ?, ?, ?)`,
			sessionID, eventName, p, now,
		); err != nil {
			return err
		}
	}
	return nil
}

// PendingUploads returns up to limit undelivered jobs, oldest first.
func (db *DB) PendingUploads(limit int) ([]UploadJob, error) {
	rows, err := db.Query(
		`SELECT id, session_id, COALESCE(event_name, ''), file_path
		 FROM upload_queue WHERE sent_at IS NULL ORDER BY id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []UploadJob
	for rows.Next() {
		var j UploadJob
		if err := rows.Scan(&j.ID, &j.SessionID, &j.EventName, &j.FilePath); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkSent flags a queued job as delivered.
func (db *DB) MarkSent(id int64) error {
	_, err := db.Exec(`UPDATE upload_queue SET sent_at = ? WHERE id = ?`, time.Now(), id)
	return err
}
