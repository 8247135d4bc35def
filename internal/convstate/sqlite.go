package convstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is the durable Store backing conversation state across restarts.
type SQLite struct {
	db          *sql.DB
	path        string
	defaultMode Mode
}

// OpenSQLite opens or creates the conversation database at path.
func OpenSQLite(path string, defaultMode Mode) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("state store path must be set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare state store dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	working_dir TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init state schema: %w", err)
	}

	return &SQLite{db: db, path: path, defaultMode: defaultMode}, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (State, error) {
	var st State
	row := s.db.QueryRowContext(ctx,
		`SELECT id, mode, working_dir FROM conversations WHERE id=?`, id)
	var mode string
	if err := row.Scan(&st.ConversationID, &mode, &st.WorkingDir); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return defaultState(id, s.defaultMode), nil
		}
		return State{}, err
	}
	st.Mode = Mode(mode)
	if !ValidMode(st.Mode) {
		st.Mode = s.defaultMode
	}
	if st.WorkingDir == "" {
		st.WorkingDir = "."
	}
	return st, nil
}

func (s *SQLite) SetMode(ctx context.Context, id string, mode Mode) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO conversations (id, mode, working_dir, updated_at)
VALUES(?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
	mode=excluded.mode,
	updated_at=excluded.updated_at
`, id, string(mode), ".", time.Now())
	return err
}

func (s *SQLite) SetCwd(ctx context.Context, id string, dir string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO conversations (id, mode, working_dir, updated_at)
VALUES(?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
	working_dir=excluded.working_dir,
	updated_at=excluded.updated_at
`, id, string(s.defaultMode), dir, time.Now())
	return err
}

func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
