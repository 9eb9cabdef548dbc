package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"manual-rag/internal/helper"
	"manual-rag/internal/models"
)

// SQLiteStore persists turns in a sessions/messages schema.
type SQLiteStore struct {
	db        *sql.DB
	sessionID string
}

// NewSession asks OpenSQLite for a fresh session instead of resuming one.
const NewSession = "new"

// OpenSQLite opens the history database at path and loads the turns of
// sessionID, creating the session when it does not exist yet. An empty
// sessionID resumes the most recently active session.
func OpenSQLite(path, sessionID string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	if s.sessionID, err = s.resolveSession(sessionID); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.ensureSession(); err != nil {
		db.Close()
		return nil, err
	}
	turns, err := s.load()
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Str("session", s.sessionID).Int("turns", len(turns)).Msg("Loaded history")
	return &Log{turns: turns, store: s}, nil
}

func (s *SQLiteStore) resolveSession(sessionID string) (string, error) {
	switch sessionID {
	case NewSession:
		return helper.GenerateUUID()
	case "":
		ids, err := s.Sessions()
		if err != nil {
			return "", err
		}
		if len(ids) > 0 {
			return ids[0], nil
		}
		return helper.GenerateUUID()
	default:
		return sessionID, nil
	}
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			sources TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) ensureSession() error {
	now := time.Now().UnixMilli()
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		s.sessionID, now, now,
	)
	return err
}

func (s *SQLiteStore) insert(turn models.Turn) error {
	var sources sql.NullString
	if len(turn.Sources) > 0 {
		b, err := json.Marshal(turn.Sources)
		if err != nil {
			return err
		}
		sources = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	created := turn.CreatedAt.UnixMilli()
	if _, err := tx.Exec(
		`INSERT INTO messages (session_id, role, content, sources, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.sessionID, string(turn.Role), turn.Content, sources, created,
	); err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	if _, err := tx.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, created, s.sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) load() ([]models.Turn, error) {
	rows, err := s.db.Query(
		`SELECT role, content, sources, created_at FROM messages WHERE session_id = ? ORDER BY id`,
		s.sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var (
			turn    models.Turn
			role    string
			sources sql.NullString
			created int64
		)
		if err := rows.Scan(&role, &turn.Content, &sources, &created); err != nil {
			return nil, err
		}
		turn.Role = models.Role(role)
		turn.CreatedAt = time.UnixMilli(created)
		if sources.Valid {
			if err := json.Unmarshal([]byte(sources.String), &turn.Sources); err != nil {
				return nil, fmt.Errorf("corrupt sources in history: %w", err)
			}
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// Sessions lists stored session ids, most recently active first.
func (s *SQLiteStore) Sessions() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM sessions ORDER BY updated_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
