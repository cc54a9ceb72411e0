package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/dmaloney/foreman/internal/forge"
	"github.com/dmaloney/foreman/internal/model"
	"github.com/dmaloney/foreman/internal/store"
	"github.com/dmaloney/foreman/internal/stream"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// storeError maps store errors to HTTP responses.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.logger.Error("store operation failed", "err", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func parseID(ps httprouter.Params) (uuid.UUID, error) {
	return uuid.Parse(ps.ByName("id"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.streams.ConnectionCount(),
	})
}

// -----------------------------------------------------------------------------
// Repositories
// -----------------------------------------------------------------------------

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	repos, err := s.store.ListRepositories(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	if repos == nil {
		repos = []model.Repository{}
	}
	s.writeJSON(w, http.StatusOK, repos)
}

func (s *Server) handleCreateRepository(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var repo model.Repository
	if err := json.NewDecoder(r.Body).Decode(&repo); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if repo.Name == "" || repo.Owner == "" {
		s.writeError(w, http.StatusBadRequest, "name and owner are required")
		return
	}

	if err := s.store.CreateRepository(r.Context(), &repo); err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, repo)
}

func (s *Server) handleGetRepository(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseID(ps)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	repo, err := s.store.GetRepository(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, repo)
}

func (s *Server) handleDeleteRepository(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseID(ps)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := s.store.DeleteRepository(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Worktrees
// -----------------------------------------------------------------------------

func (s *Server) handleListWorktrees(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseID(ps)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	wts, err := s.store.ListWorktrees(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if wts == nil {
		wts = []model.Worktree{}
	}
	s.writeJSON(w, http.StatusOK, wts)
}

func (s *Server) handleCreateWorktree(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var wt model.Worktree
	if err := json.NewDecoder(r.Body).Decode(&wt); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if wt.RepositoryID == uuid.Nil || wt.Branch == "" {
		s.writeError(w, http.StatusBadRequest, "repository_id and branch are required")
		return
	}
	if wt.BaseBranch == "" {
		wt.BaseBranch = "main"
	}

	if err := s.store.CreateWorktree(r.Context(), &wt); err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, wt)
}

func (s *Server) handleGetWorktree(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseID(ps)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	wt, err := s.store.GetWorktree(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wt)
}

func (s *Server) handleDeleteWorktree(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseID(ps)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := s.store.DeleteWorktree(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Pull requests
// -----------------------------------------------------------------------------

// worktreeRepo resolves a worktree and its repository, or writes an error.
func (s *Server) worktreeRepo(w http.ResponseWriter, r *http.Request, ps httprouter.Params) (*model.Worktree, *model.Repository, bool) {
	if s.pulls == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no provider configured")
		return nil, nil, false
	}

	id, err := parseID(ps)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return nil, nil, false
	}

	wt, err := s.store.GetWorktree(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return nil, nil, false
	}

	repo, err := s.store.GetRepository(r.Context(), wt.RepositoryID)
	if err != nil {
		s.storeError(w, err)
		return nil, nil, false
	}
	return wt, repo, true
}

func (s *Server) handleGetPull(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	wt, repo, ok := s.worktreeRepo(w, r, ps)
	if !ok {
		return
	}

	pr, err := s.pulls.FindPullForBranch(r.Context(), repo.Owner, repo.Name, wt.Branch)
	if err != nil {
		s.logger.Error("find pull failed", "branch", wt.Branch, "err", err)
		s.writeError(w, http.StatusBadGateway, "provider request failed")
		return
	}
	if pr == nil {
		s.writeError(w, http.StatusNotFound, "no open pull request for branch")
		return
	}
	s.writeJSON(w, http.StatusOK, pr)
}

func (s *Server) handleCreatePull(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	wt, repo, ok := s.worktreeRepo(w, r, ps)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		Draft bool   `json:"draft"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Title == "" {
		s.writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	pr, err := s.pulls.CreatePull(r.Context(), repo.Owner, repo.Name, forge.CreatePullOptions{
		Title: req.Title,
		Body:  req.Body,
		Head:  wt.Branch,
		Base:  wt.BaseBranch,
		Draft: req.Draft,
	})
	if err != nil {
		s.logger.Error("create pull failed", "branch", wt.Branch, "err", err)
		s.writeError(w, http.StatusBadGateway, "provider request failed")
		return
	}
	s.writeJSON(w, http.StatusCreated, pr)
}

func (s *Server) handleMergePull(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	wt, repo, ok := s.worktreeRepo(w, r, ps)
	if !ok {
		return
	}

	var req struct {
		Method string `json:"method"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	pr, err := s.pulls.FindPullForBranch(r.Context(), repo.Owner, repo.Name, wt.Branch)
	if err != nil {
		s.logger.Error("find pull failed", "branch", wt.Branch, "err", err)
		s.writeError(w, http.StatusBadGateway, "provider request failed")
		return
	}
	if pr == nil {
		s.writeError(w, http.StatusNotFound, "no open pull request for branch")
		return
	}

	if err := s.pulls.MergePull(r.Context(), repo.Owner, repo.Name, pr.Number, req.Method); err != nil {
		s.logger.Error("merge pull failed", "number", pr.Number, "err", err)
		s.writeError(w, http.StatusConflict, "merge failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"merged": true, "number": pr.Number})
}

// -----------------------------------------------------------------------------
// Instances
// -----------------------------------------------------------------------------

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// ?active=true serves the registry's in-memory view instead of a
	// store query.
	if r.URL.Query().Get("active") == "true" {
		insts := s.registry.GetActiveInstances()
		if insts == nil {
			insts = []model.Instance{}
		}
		s.writeJSON(w, http.StatusOK, insts)
		return
	}

	worktreeID := uuid.Nil
	if raw := r.URL.Query().Get("worktree_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid worktree_id")
			return
		}
		worktreeID = id
	}

	insts, err := s.store.ListInstances(r.Context(), worktreeID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if insts == nil {
		insts = []model.Instance{}
	}
	s.writeJSON(w, http.StatusOK, insts)
}

func (s *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var inst model.Instance
	if err := json.NewDecoder(r.Body).Decode(&inst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if inst.WorktreeID == uuid.Nil {
		s.writeError(w, http.StatusBadRequest, "worktree_id is required")
		return
	}
	if inst.AgentKind == "" {
		inst.AgentKind = "claude"
	}

	if err := s.store.CreateInstance(r.Context(), &inst); err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, inst)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseID(ps)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	inst, err := s.store.GetInstance(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseID(ps)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := s.store.DeleteInstance(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateInstanceStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseID(ps)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		Status model.InstanceStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	switch req.Status {
	case model.InstancePending, model.InstanceRunning, model.InstanceWaiting,
		model.InstanceStopped, model.InstanceFinished, model.InstanceFailed:
	default:
		s.writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	if err := s.registry.UpdateStatus(r.Context(), id, req.Status); err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

// -----------------------------------------------------------------------------
// Terminal streams
// -----------------------------------------------------------------------------

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats := s.streams.Stats()
	if stats == nil {
		stats = []stream.ConnStats{}
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSessionSnapshot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sessionID := ps.ByName("id")
	data := s.streams.Snapshot(sessionID)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	s.streams.SetActive(req.Active)
	s.writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}
