// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/agent persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL REFERENCES users(id),
	name           TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'provisioning',
	last_heartbeat TIMESTAMP,
	created_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_agents_user ON agents(user_id);
`

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. Use ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// modernc.org/sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent gateway handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("store opened", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

// CreateUser inserts a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)",
		user.ID, user.Username, user.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUser returns the user with the given ID, or ErrNotFound.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, created_at FROM users WHERE id = ?", id)
	return scanUser(row)
}

// GetUserByUsername returns the user with the given username, or ErrNotFound.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, created_at FROM users WHERE username = ?", username)
	return scanUser(row)
}

// CountUsers returns the total number of users. Used by bootstrap to detect
// an already-initialized database.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

// CreateAgent inserts a new agent record.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	status := agent.Status
	if status == "" {
		status = "provisioning"
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO agents (id, user_id, name, status, created_at) VALUES (?, ?, ?, ?, ?)",
		agent.ID, agent.UserID, agent.Name, status, agent.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting agent: %w", err)
	}
	return nil
}

// GetAgent returns the agent only if it exists and belongs to userID.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID, userID string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, status, last_heartbeat, created_at
		 FROM agents WHERE id = ? AND user_id = ?`, agentID, userID)

	var a Agent
	var hb sql.NullTime
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Status, &hb, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning agent: %w", err)
	}
	if hb.Valid {
		a.LastHeartbeat = &hb.Time
	}
	return &a, nil
}

// ListAgentsForUser returns all agents owned by the given user.
func (s *SQLiteStore) ListAgentsForUser(ctx context.Context, userID string) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, status, last_heartbeat, created_at
		 FROM agents WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		var a Agent
		var hb sql.NullTime
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Status, &hb, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		if hb.Valid {
			a.LastHeartbeat = &hb.Time
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// UpdateAgentStatus sets the agent's runtime status.
func (s *SQLiteStore) UpdateAgentStatus(ctx context.Context, agentID, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE agents SET status = ? WHERE id = ?", status, agentID)
	if err != nil {
		return fmt.Errorf("updating agent status: %w", err)
	}
	return requireRow(res)
}

// UpdateAgentHeartbeat stamps the agent's liveness timestamp with now.
func (s *SQLiteStore) UpdateAgentHeartbeat(ctx context.Context, agentID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE agents SET last_heartbeat = ? WHERE id = ?", time.Now().UTC(), agentID)
	if err != nil {
		return fmt.Errorf("updating agent heartbeat: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
