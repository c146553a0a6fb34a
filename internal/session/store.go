package session

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultDuration is how long a session runs when no explicit end time
// is chosen at creation.
const DefaultDuration = 15 * time.Minute

// Store persists session metadata: everything about a session that
// outlives its in-memory room. It also answers the joinable check the
// hub runs before creating a room for an unknown id.
type Store struct {
	db *sql.DB
}

type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	AccessCode  string    `json:"access_code"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func Open(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Printf("Session store initialized at %s", dbPath)
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT 'Session',
		description TEXT NOT NULL DEFAULT '',
		access_code TEXT NOT NULL UNIQUE,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a session record. An empty id or start time gets a
// generated id / a start of now; the end time defaults to
// start+DefaultDuration.
func (s *Store) Create(id, title, description string, start, end time.Time) (*Session, error) {
	if id == "" {
		id = newShortID()
	}
	if title == "" {
		title = "Session"
	}
	if start.IsZero() {
		start = time.Now()
	}
	if end.IsZero() {
		end = start.Add(DefaultDuration)
	}

	now := time.Now()
	active := !now.Before(start) && !now.After(end)

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, title, description, access_code, start_time, end_time, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, title, description, newShortID(), start.UTC(), end.UTC(), active)
	if err != nil {
		return nil, err
	}

	return s.Get(id)
}

// Get returns nil without error when the session does not exist.
func (s *Store) Get(id string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, title, description, access_code, start_time, end_time, is_active, created_at
		FROM sessions WHERE id = ?
	`, id)

	var sess Session
	err := row.Scan(&sess.ID, &sess.Title, &sess.Description, &sess.AccessCode,
		&sess.StartTime, &sess.EndTime, &sess.IsActive, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) List(limit, offset int) ([]Session, error) {
	rows, err := s.db.Query(`
		SELECT id, title, description, access_code, start_time, end_time, is_active, created_at
		FROM sessions ORDER BY start_time DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.Description, &sess.AccessCode,
			&sess.StartTime, &sess.EndTime, &sess.IsActive, &sess.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) Delete(id string) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	return err
}

// Collaborator operations used by the hub.

// EndTime reports a session's expiry; the second result is false when
// the session is unknown.
func (s *Store) EndTime(id string) (time.Time, bool, error) {
	var end time.Time
	err := s.db.QueryRow("SELECT end_time FROM sessions WHERE id = ?", id).Scan(&end)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return end, true, nil
}

func (s *Store) SetEndTime(id string, end time.Time) error {
	_, err := s.db.Exec("UPDATE sessions SET end_time = ? WHERE id = ?", end.UTC(), id)
	return err
}

func (s *Store) MarkInactive(id string) error {
	_, err := s.db.Exec("UPDATE sessions SET is_active = FALSE WHERE id = ?", id)
	return err
}

// ExistsAndJoinable is the gate for implicit room creation: the id must
// name an active session that has not yet expired.
func (s *Store) ExistsAndJoinable(id string) (bool, error) {
	var active bool
	var end time.Time
	err := s.db.QueryRow("SELECT is_active, end_time FROM sessions WHERE id = ?", id).Scan(&active, &end)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return active && time.Now().Before(end), nil
}

// Stats

func (s *Store) Stats() (map[string]any, error) {
	stats := make(map[string]any)

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&total); err != nil {
		return nil, err
	}
	stats["session_count"] = total

	var active int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sessions WHERE is_active = TRUE").Scan(&active); err != nil {
		return nil, err
	}
	stats["active_session_count"] = active

	return stats, nil
}

// Short upper-case codes in the shape clients share out of band.
func newShortID() string {
	return strings.ToUpper(uuid.NewString()[:8])
}
