package history

import (
	"sync"
	"time"

	"manual-rag/internal/models"
)

// Log is the append-only conversation history of one session.
// Turns are never edited or removed.
type Log struct {
	mu    sync.RWMutex
	turns []models.Turn
	store *SQLiteStore
}

// New returns an in-memory log.
func New() *Log {
	return &Log{}
}

// Append adds a turn, stamping CreatedAt when unset. With a SQLite backing
// store the turn is persisted first; on error the log is left unchanged.
func (l *Log) Append(turn models.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store != nil {
		if err := l.store.insert(turn); err != nil {
			return err
		}
	}
	l.turns = append(l.turns, turn)
	return nil
}

// Turns returns a copy of the history in insertion order.
func (l *Log) Turns() []models.Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// SessionID is empty for in-memory logs.
func (l *Log) SessionID() string {
	if l.store == nil {
		return ""
	}
	return l.store.sessionID
}

func (l *Log) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}
