package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/render-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	output_dir   TEXT NOT NULL,
	pages_total  INTEGER NOT NULL DEFAULT 0,
	pages_failed INTEGER NOT NULL DEFAULT 0,
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at  DATETIME
);

CREATE TABLE IF NOT EXISTS pages (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	url         TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	file        TEXT NOT NULL DEFAULT '',
	bytes       INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	fetched_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_pages_session_id ON pages(session_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, status, output_dir, pages_total, pages_failed, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, string(sess.Status), sess.OutputDir, sess.PagesTotal, sess.PagesFailed, sess.StartedAt,
	)
	return eris.Wrap(err, "sqlite: insert session")
}

func (s *SQLiteStore) CompleteSession(ctx context.Context, sessionID string, status model.SessionStatus, pagesFailed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, pages_failed = ?, finished_at = ? WHERE id = ?`,
		string(status), pagesFailed, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete session %s", sessionID)
	}
	return checkRowsAffected(res, "session", sessionID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, output_dir, pages_total, pages_failed, started_at, finished_at FROM sessions WHERE id = ?`,
		sessionID,
	)
	return scanSession(row)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT id, status, output_dir, pages_total, pages_failed, started_at, finished_at FROM sessions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND started_at > ?`
		args = append(args, filter.CreatedAfter)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) SavePage(ctx context.Context, p *model.Page) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pages (id, session_id, url, title, file, bytes, duration_ms, error, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SessionID, p.URL, p.Title, p.File, p.Bytes, p.DurationMS, p.Error, p.FetchedAt,
	)
	return eris.Wrapf(err, "sqlite: insert page for session %s", p.SessionID)
}

func (s *SQLiteStore) ListPages(ctx context.Context, sessionID string) ([]model.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, url, title, file, bytes, duration_ms, error, fetched_at
		 FROM pages WHERE session_id = ? ORDER BY fetched_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list pages for session %s", sessionID)
	}
	defer rows.Close()

	var pages []model.Page
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p.ID, &p.SessionID, &p.URL, &p.Title, &p.File, &p.Bytes, &p.DurationMS, &p.Error, &p.FetchedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan page")
		}
		pages = append(pages, p)
	}
	return pages, eris.Wrap(rows.Err(), "sqlite: list pages iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.Session, error) {
	var sess model.Session
	var finishedAt sql.NullTime

	err := row.Scan(&sess.ID, &sess.Status, &sess.OutputDir, &sess.PagesTotal, &sess.PagesFailed, &sess.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("session not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan session")
	}

	if finishedAt.Valid {
		t := finishedAt.Time
		sess.FinishedAt = &t
	}
	return &sess, nil
}
