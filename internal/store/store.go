// ABOUTME: Store interface and data types for orbit-gateway persistence
// ABOUTME: Defines User and Agent records and the directory operations the gateway consumes

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist, or when an
// agent exists but is not owned by the requesting user. The two cases are
// deliberately indistinguishable so agent existence never leaks across tenants.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUsername is returned when creating a user whose username is taken.
var ErrDuplicateUsername = errors.New("username already exists")

// User is a platform account. Each user owns one or more computers.
type User struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

// Agent is the AI-driven process inside a user's backing container. Status
// reflects the container runtime's view ("provisioning", "running",
// "stopped"); LastHeartbeat is updated from agent heartbeat events.
type Agent struct {
	ID            string
	UserID        string
	Name          string
	Status        string
	LastHeartbeat *time.Time
	CreatedAt     time.Time
}

// Store defines the user/agent directory operations
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CountUsers(ctx context.Context) (int, error)

	// Agents
	CreateAgent(ctx context.Context, agent *Agent) error
	// GetAgent performs the ownership check: it returns ErrNotFound both for
	// a missing agent and for an agent owned by a different user.
	GetAgent(ctx context.Context, agentID, userID string) (*Agent, error)
	ListAgentsForUser(ctx context.Context, userID string) ([]*Agent, error)
	UpdateAgentStatus(ctx context.Context, agentID, status string) error
	UpdateAgentHeartbeat(ctx context.Context, agentID string) error

	Close() error
}
