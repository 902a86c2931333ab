package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/render-cli/internal/model"
)

// Pool is the slice of pgxpool.Pool the store uses. pgxmock's PgxPoolIface
// satisfies it, so the postgres store is testable without a database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_session":   `INSERT INTO sessions (id, status, output_dir, pages_total, pages_failed, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"complete_session": `UPDATE sessions SET status = $1, pages_failed = $2, finished_at = $3 WHERE id = $4`,
	"get_session":      `SELECT id, status, output_dir, pages_total, pages_failed, started_at, finished_at FROM sessions WHERE id = $1`,
	"insert_page":      `INSERT INTO pages (id, session_id, url, title, file, bytes, duration_ms, error, fetched_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"list_pages":       `SELECT id, session_id, url, title, file, bytes, duration_ms, error, fetched_at FROM pages WHERE session_id = $1 ORDER BY fetched_at ASC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	output_dir   TEXT NOT NULL,
	pages_total  INTEGER NOT NULL DEFAULT 0,
	pages_failed INTEGER NOT NULL DEFAULT 0,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS pages (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	url         TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	file        TEXT NOT NULL DEFAULT '',
	bytes       BIGINT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	fetched_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_pages_session_id ON pages(session_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *model.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, status, output_dir, pages_total, pages_failed, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, string(sess.Status), sess.OutputDir, sess.PagesTotal, sess.PagesFailed, sess.StartedAt,
	)
	return eris.Wrap(err, "postgres: insert session")
}

func (s *PostgresStore) CompleteSession(ctx context.Context, sessionID string, status model.SessionStatus, pagesFailed int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, pages_failed = $2, finished_at = $3 WHERE id = $4`,
		string(status), pagesFailed, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete session %s", sessionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("session not found: %s", sessionID)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	var sess model.Session
	var finishedAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, status, output_dir, pages_total, pages_failed, started_at, finished_at FROM sessions WHERE id = $1`,
		sessionID,
	).Scan(&sess.ID, &sess.Status, &sess.OutputDir, &sess.PagesTotal, &sess.PagesFailed, &sess.StartedAt, &finishedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", sessionID)
	}

	sess.FinishedAt = finishedAt
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT id, status, output_dir, pages_total, pages_failed, started_at, finished_at FROM sessions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND started_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		var finishedAt *time.Time

		if err := rows.Scan(&sess.ID, &sess.Status, &sess.OutputDir, &sess.PagesTotal, &sess.PagesFailed, &sess.StartedAt, &finishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sess.FinishedAt = finishedAt
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) SavePage(ctx context.Context, p *model.Page) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pages (id, session_id, url, title, file, bytes, duration_ms, error, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.SessionID, p.URL, p.Title, p.File, p.Bytes, p.DurationMS, p.Error, p.FetchedAt,
	)
	return eris.Wrapf(err, "postgres: insert page for session %s", p.SessionID)
}

func (s *PostgresStore) ListPages(ctx context.Context, sessionID string) ([]model.Page, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, url, title, file, bytes, duration_ms, error, fetched_at
		 FROM pages WHERE session_id = $1 ORDER BY fetched_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list pages for session %s", sessionID)
	}
	defer rows.Close()

	var pages []model.Page
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p.ID, &p.SessionID, &p.URL, &p.Title, &p.File, &p.Bytes, &p.DurationMS, &p.Error, &p.FetchedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan page")
		}
		pages = append(pages, p)
	}
	return pages, eris.Wrap(rows.Err(), "postgres: list pages iterate")
}
