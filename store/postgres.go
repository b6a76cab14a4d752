package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"reelsmith/types"

	"github.com/lib/pq"
)

// PostgresStore implements Store on top of PostgreSQL via database/sql + lib/pq
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and ensures the schema exists
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool
func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			script_id  TEXT NOT NULL DEFAULT '',
			title      TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL,
			config     JSONB,
			video_url  TEXT NOT NULL DEFAULT '',
			error      TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS assets (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			kind       TEXT NOT NULL,
			url        TEXT NOT NULL,
			approved   BOOLEAN NOT NULL DEFAULT false,
			ordinal    INTEGER NOT NULL DEFAULT 0,
			metadata   JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_session_kind ON assets(session_id, kind)`,
		`CREATE TABLE IF NOT EXISTS generation_costs (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			service     TEXT NOT NULL,
			cost        DOUBLE PRECISION NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			detail      JSONB,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_costs_session ON generation_costs(session_id)`,
		`CREATE TABLE IF NOT EXISTS scripts (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			sections   JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *types.Session) error {
	cfg, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("marshal session config: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, script_id, title, status, config, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		sess.ID, sess.UserID, sess.ScriptID, sess.Title, string(sess.Status), cfg)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id, userID string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, script_id, title, status, config, video_url, error, created_at, updated_at
		 FROM sessions WHERE id = $1 AND user_id = $2`, id, userID)

	var sess types.Session
	var status string
	var cfg []byte
	err := row.Scan(&sess.ID, &sess.UserID, &sess.ScriptID, &sess.Title, &status,
		&cfg, &sess.VideoURL, &sess.Error, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	sess.Status = types.SessionStatus(status)
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &sess.Config); err != nil {
			return nil, fmt.Errorf("unmarshal session config: %w", err)
		}
	}
	return &sess, nil
}

func (s *PostgresStore) AdvanceSessionStatus(ctx context.Context, id string, from, to types.SessionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (s *PostgresStore) FailSession(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = $1, error = $2, updated_at = now()
		 WHERE id = $3 AND status NOT IN ($4, $5)`,
		string(types.StatusFailed), message, id,
		string(types.StatusCompleted), string(types.StatusFailed))
	if err != nil {
		return fmt.Errorf("fail session: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetSessionVideoURL(ctx context.Context, id, url string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET video_url = $1, updated_at = now() WHERE id = $2`, url, id)
	if err != nil {
		return fmt.Errorf("set video url: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStaleSessions(ctx context.Context, olderThan time.Time, statuses []types.SessionStatus) ([]*types.Session, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, script_id, title, status, video_url, error, created_at, updated_at
		 FROM sessions WHERE updated_at < $1 AND status = ANY($2)`,
		olderThan, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}
	defer rows.Close()

	var out []*types.Session
	for rows.Next() {
		var sess types.Session
		var status string
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.ScriptID, &sess.Title, &status,
			&sess.VideoURL, &sess.Error, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stale session: %w", err)
		}
		sess.Status = types.SessionStatus(status)
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateAsset(ctx context.Context, a *types.Asset) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal asset metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assets (id, session_id, kind, url, approved, ordinal, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		a.ID, a.SessionID, a.Kind, a.URL, a.Approved, a.Ordinal, meta)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAssets(ctx context.Context, sessionID, kind string) ([]*types.Asset, error) {
	query := `SELECT id, session_id, kind, url, approved, ordinal, metadata, created_at
		 FROM assets WHERE session_id = $1`
	args := []interface{}{sessionID}
	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, kind)
	}
	query += ` ORDER BY ordinal, created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out []*types.Asset
	for rows.Next() {
		var a types.Asset
		var meta []byte
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Kind, &a.URL, &a.Approved,
			&a.Ordinal, &meta, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal asset metadata: %w", err)
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ApproveAsset(ctx context.Context, assetID string, approved bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assets SET approved = $1 WHERE id = $2`, approved, assetID)
	if err != nil {
		return fmt.Errorf("approve asset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateCost(ctx context.Context, c *types.GenerationCost) error {
	detail, err := json.Marshal(c.Detail)
	if err != nil {
		return fmt.Errorf("marshal cost detail: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO generation_costs (id, session_id, service, cost, tokens_used, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())`,
		c.ID, c.SessionID, c.Service, c.Cost, c.TokensUsed, detail)
	if err != nil {
		return fmt.Errorf("insert cost: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCosts(ctx context.Context, sessionID string) ([]*types.GenerationCost, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, service, cost, tokens_used, detail, created_at
		 FROM generation_costs WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list costs: %w", err)
	}
	defer rows.Close()

	var out []*types.GenerationCost
	for rows.Next() {
		var c types.GenerationCost
		var detail []byte
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Service, &c.Cost,
			&c.TokensUsed, &detail, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cost: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &c.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal cost detail: %w", err)
			}
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TotalCost(ctx context.Context, sessionID string) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM generation_costs WHERE session_id = $1`,
		sessionID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total cost: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) CreateScript(ctx context.Context, script *types.Script) error {
	sections, err := json.Marshal(script.Sections)
	if err != nil {
		return fmt.Errorf("marshal script sections: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scripts (id, user_id, title, sections, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		script.ID, script.UserID, script.Title, sections)
	if err != nil {
		return fmt.Errorf("insert script: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetScript(ctx context.Context, id, userID string) (*types.Script, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, sections, created_at FROM scripts
		 WHERE id = $1 AND user_id = $2`, id, userID)

	var script types.Script
	var sections []byte
	err := row.Scan(&script.ID, &script.UserID, &script.Title, &sections, &script.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select script: %w", err)
	}

	if err := json.Unmarshal(sections, &script.Sections); err != nil {
		return nil, fmt.Errorf("unmarshal script sections: %w", err)
	}
	return &script, nil
}
