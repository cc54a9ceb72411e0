// Package store provides PostgreSQL persistence for workspace state.
//
// The dashboard keeps its durable records here:
//   - repositories: git repositories registered with the dashboard
//   - worktrees: per-task git worktrees carved out of a repository
//   - instances: agent runs inside a worktree, keyed by session ID
//
// Terminal output is never persisted; the stream manager holds only a
// bounded in-memory replay buffer per session.
package store
