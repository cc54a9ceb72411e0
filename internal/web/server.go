package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/dmaloney/foreman/internal/forge"
	"github.com/dmaloney/foreman/internal/model"
	"github.com/dmaloney/foreman/internal/stream"
	"github.com/dmaloney/foreman/internal/workspace"
)

// Streams is the stream manager surface the server needs.
type Streams interface {
	ConnectWithReplay(ctx context.Context, sessionID string, fn stream.Observer) (*stream.Subscription, []byte, error)
	Disconnect(sessionID string, sub *stream.Subscription)
	Send(sessionID string, f stream.Frame) bool
	Snapshot(sessionID string) []byte
	Stats() []stream.ConnStats
	ConnectionCount() int
	SetActive(active bool)
}

// Store is the persistence surface the server needs.
type Store interface {
	CreateRepository(ctx context.Context, repo *model.Repository) error
	GetRepository(ctx context.Context, id uuid.UUID) (*model.Repository, error)
	ListRepositories(ctx context.Context) ([]model.Repository, error)
	DeleteRepository(ctx context.Context, id uuid.UUID) error

	CreateWorktree(ctx context.Context, wt *model.Worktree) error
	GetWorktree(ctx context.Context, id uuid.UUID) (*model.Worktree, error)
	ListWorktrees(ctx context.Context, repositoryID uuid.UUID) ([]model.Worktree, error)
	DeleteWorktree(ctx context.Context, id uuid.UUID) error

	CreateInstance(ctx context.Context, inst *model.Instance) error
	GetInstance(ctx context.Context, id uuid.UUID) (*model.Instance, error)
	ListInstances(ctx context.Context, worktreeID uuid.UUID) ([]model.Instance, error)
	DeleteInstance(ctx context.Context, id uuid.UUID) error
}

// Pulls is the provider surface the server needs. *forge.Client
// satisfies it.
type Pulls interface {
	FindPullForBranch(ctx context.Context, owner, repo, branch string) (*model.PullRequest, error)
	CreatePull(ctx context.Context, owner, repo string, opts forge.CreatePullOptions) (*model.PullRequest, error)
	MergePull(ctx context.Context, owner, repo string, number int, method string) error
}

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Server serves the dashboard API.
type Server struct {
	cfg      Config
	streams  Streams
	store    Store
	registry workspace.Registry
	pulls    Pulls
	logger   *slog.Logger

	router *httprouter.Router
	server *http.Server
}

// NewServer creates the dashboard API server. pulls may be nil when no
// provider token is configured; PR endpoints then return 503.
func NewServer(cfg Config, streams Streams, st Store, reg workspace.Registry, pulls Pulls, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:      cfg,
		streams:  streams,
		store:    st,
		registry: reg,
		pulls:    pulls,
		logger:   logger,
		router:   httprouter.New(),
	}

	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.router,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "err", err)
		}
	}()

	s.logger.Info("dashboard api listening", "addr", s.cfg.Addr)
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	// Repositories
	s.router.GET("/api/repositories", s.handleListRepositories)
	s.router.POST("/api/repositories", s.handleCreateRepository)
	s.router.GET("/api/repositories/:id", s.handleGetRepository)
	s.router.DELETE("/api/repositories/:id", s.handleDeleteRepository)
	s.router.GET("/api/repositories/:id/worktrees", s.handleListWorktrees)

	// Worktrees
	s.router.POST("/api/worktrees", s.handleCreateWorktree)
	s.router.GET("/api/worktrees/:id", s.handleGetWorktree)
	s.router.DELETE("/api/worktrees/:id", s.handleDeleteWorktree)
	s.router.GET("/api/worktrees/:id/pull", s.handleGetPull)
	s.router.POST("/api/worktrees/:id/pull", s.handleCreatePull)
	s.router.POST("/api/worktrees/:id/pull/merge", s.handleMergePull)

	// Instances. Active-only listing is a query flag on the collection:
	// httprouter rejects a static segment alongside :id.
	s.router.GET("/api/instances", s.handleListInstances)
	s.router.POST("/api/instances", s.handleCreateInstance)
	s.router.GET("/api/instances/:id", s.handleGetInstance)
	s.router.DELETE("/api/instances/:id", s.handleDeleteInstance)
	s.router.POST("/api/instances/:id/status", s.handleUpdateInstanceStatus)

	// Terminal streams. Stats live under /api/streams for the same
	// routing reason.
	s.router.GET("/api/streams/stats", s.handleSessionStats)
	s.router.GET("/api/sessions/:id/snapshot", s.handleSessionSnapshot)
	s.router.GET("/api/sessions/:id/terminal", s.handleTerminal)
	s.router.POST("/api/activity", s.handleActivity)
}
