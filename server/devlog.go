package server

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	// SQLite driver (pure Go, no CGO required)
	_ "modernc.org/sqlite"

	"github.com/sambeau/sorrel/config"
)

// DevLog records served requests and file-change events in a local
// SQLite database so a session can be inspected after the fact. The
// file is size-capped: when it grows past the limit the oldest slice
// of entries is deleted.
type DevLog struct {
	mu          sync.RWMutex
	db          *sql.DB
	path        string
	maxSize     int64
	truncatePct int
}

// DevLogEntry is one recorded event.
type DevLogEntry struct {
	ID         int64
	Kind       string // "request" or "change"
	Method     string
	Path       string
	Status     int
	DurationMS int64
	ClientIP   string
	Timestamp  time.Time
}

// NewDevLog opens (or creates) the log database. An empty path in cfg
// places "sorrel_dev.db" in baseDir.
func NewDevLog(baseDir string, cfg config.DevConfig) (*DevLog, error) {
	path := cfg.LogDatabase
	if path == "" {
		path = filepath.Join(baseDir, "sorrel_dev.db")
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening dev log database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to dev log database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	dl := &DevLog{
		db:          db,
		path:        path,
		maxSize:     cfg.LogMaxSize,
		truncatePct: cfg.LogTruncatePct,
	}
	if dl.maxSize == 0 {
		dl.maxSize = 10 * 1024 * 1024
	}
	if dl.truncatePct == 0 {
		dl.truncatePct = 25
	}

	if err := dl.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating dev log schema: %w", err)
	}
	return dl, nil
}

func (dl *DevLog) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			method TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL,
			status INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			client_ip TEXT NOT NULL DEFAULT '',
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	`
	_, err := dl.db.Exec(schema)
	return err
}

// LogRequest records one served HTTP request.
func (dl *DevLog) LogRequest(method, path string, status int, duration time.Duration, clientIP string) error {
	return dl.insert(DevLogEntry{
		Kind:       "request",
		Method:     method,
		Path:       path,
		Status:     status,
		DurationMS: duration.Milliseconds(),
		ClientIP:   clientIP,
	})
}

// LogChange records one file-change event.
func (dl *DevLog) LogChange(path string) error {
	return dl.insert(DevLogEntry{Kind: "change", Path: path})
}

func (dl *DevLog) insert(e DevLogEntry) error {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	if err := dl.maybeAutoTruncate(); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] dev log truncation failed: %v\n", err)
	}

	_, err := dl.db.Exec(`
		INSERT INTO events (kind, method, path, status, duration_ms, client_ip)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Kind, e.Method, e.Path, e.Status, e.DurationMS, e.ClientIP)
	return err
}

// Recent returns the latest entries, optionally filtered by kind.
func (dl *DevLog) Recent(kind string, limit int) ([]DevLogEntry, error) {
	dl.mu.RLock()
	defer dl.mu.RUnlock()

	if limit <= 0 {
		limit = 1000
	}

	var rows *sql.Rows
	var err error
	if kind == "" {
		rows, err = dl.db.Query(`
			SELECT id, kind, method, path, status, duration_ms, client_ip, timestamp
			FROM events ORDER BY timestamp DESC, id DESC LIMIT ?
		`, limit)
	} else {
		rows, err = dl.db.Query(`
			SELECT id, kind, method, path, status, duration_ms, client_ip, timestamp
			FROM events WHERE kind = ? ORDER BY timestamp DESC, id DESC LIMIT ?
		`, kind, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("querying dev log: %w", err)
	}
	defer rows.Close()

	var entries []DevLogEntry
	for rows.Next() {
		var e DevLogEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Method, &e.Path, &e.Status, &e.DurationMS, &e.ClientIP, &ts); err != nil {
			return nil, fmt.Errorf("scanning dev log entry: %w", err)
		}
		for _, layout := range []string{
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05Z",
			"2006-01-02T15:04:05",
			time.RFC3339,
		} {
			if t, err := time.Parse(layout, ts); err == nil {
				e.Timestamp = t
				break
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of entries, optionally filtered by kind.
func (dl *DevLog) Count(kind string) (int, error) {
	dl.mu.RLock()
	defer dl.mu.RUnlock()

	var count int
	var err error
	if kind == "" {
		err = dl.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count)
	} else {
		err = dl.db.QueryRow("SELECT COUNT(*) FROM events WHERE kind = ?", kind).Scan(&count)
	}
	return count, err
}

// maybeAutoTruncate deletes the oldest slice of entries once the
// database file passes the size cap. Must be called with lock held.
func (dl *DevLog) maybeAutoTruncate() error {
	info, err := os.Stat(dl.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() < dl.maxSize {
		return nil
	}

	var total int
	if err := dl.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&total); err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	deleteCount := (total * dl.truncatePct) / 100
	if deleteCount == 0 {
		deleteCount = 1
	}
	_, err = dl.db.Exec(`
		DELETE FROM events WHERE id IN (
			SELECT id FROM events ORDER BY timestamp ASC, id ASC LIMIT ?
		)
	`, deleteCount)
	if err != nil {
		return fmt.Errorf("truncating dev log: %w", err)
	}
	return nil
}

func (dl *DevLog) Close() error {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	return dl.db.Close()
}

func (dl *DevLog) Path() string {
	return dl.path
}
