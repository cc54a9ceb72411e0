package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Workspace Types
// -----------------------------------------------------------------------------

// Repository is a git repository registered with the dashboard.
type Repository struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`       // Short display name (e.g., "foreman")
	Owner     string    `json:"owner"`      // Provider namespace (user or org)
	RemoteURL string    `json:"remote_url"` // Clone URL on the hosting provider
	LocalPath string    `json:"local_path"` // Checkout root on the agent host
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Worktree is a git worktree carved out of a repository for one task.
type Worktree struct {
	ID           uuid.UUID `json:"id"`
	RepositoryID uuid.UUID `json:"repository_id"`
	Branch       string    `json:"branch"`      // Branch checked out in the worktree
	BaseBranch   string    `json:"base_branch"` // Branch the work will merge back into
	Path         string    `json:"path"`        // Worktree directory on the agent host
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// InstanceStatus is the coarse lifecycle state of an agent instance.
type InstanceStatus string

const (
	InstancePending  InstanceStatus = "pending"  // created, agent not yet launched
	InstanceRunning  InstanceStatus = "running"  // agent process alive
	InstanceWaiting  InstanceStatus = "waiting"  // agent blocked on user input
	InstanceStopped  InstanceStatus = "stopped"  // stopped by the user
	InstanceFinished InstanceStatus = "finished" // agent exited on its own
	InstanceFailed   InstanceStatus = "failed"   // agent exited with an error
)

// Active reports whether the instance still has a live agent process
// behind it (and therefore a session stream worth connecting to).
func (s InstanceStatus) Active() bool {
	return s == InstanceRunning || s == InstanceWaiting
}

// Terminal reports whether the status has no outgoing transitions.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceStopped || s == InstanceFinished || s == InstanceFailed
}

// Instance is one AI coding-agent run inside a worktree. SessionID is the
// key the stream manager uses for its terminal connection.
type Instance struct {
	ID         uuid.UUID      `json:"id"`
	WorktreeID uuid.UUID      `json:"worktree_id"`
	SessionID  string         `json:"session_id"` // Terminal stream session key
	AgentKind  string         `json:"agent_kind"` // Agent binary running here (e.g., "claude")
	Title      string         `json:"title"`      // User-facing task title
	Prompt     string         `json:"prompt"`     // Initial task prompt handed to the agent
	Status     InstanceStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// Provider Types
// -----------------------------------------------------------------------------

// PullRequest mirrors the subset of provider PR state the dashboard shows.
type PullRequest struct {
	Number     int       `json:"number"` // Provider PR number
	Title      string    `json:"title"`
	State      string    `json:"state"` // "open", "closed", "merged"
	HeadBranch string    `json:"head_branch"`
	BaseBranch string    `json:"base_branch"`
	URL        string    `json:"url"` // Web URL on the provider
	Draft      bool      `json:"draft"`
	UpdatedAt  time.Time `json:"updated_at"`
}
