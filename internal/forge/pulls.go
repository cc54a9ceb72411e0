package forge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dmaloney/foreman/internal/model"
)

func toPullRequest(p apiPull) model.PullRequest {
	state := p.State
	if p.Merged {
		state = "merged"
	}
	return model.PullRequest{
		Number:     p.Number,
		Title:      p.Title,
		State:      state,
		HeadBranch: p.Head.Ref,
		BaseBranch: p.Base.Ref,
		URL:        p.HTMLURL,
		Draft:      p.Draft,
		UpdatedAt:  p.UpdatedAt,
	}
}

// ListPulls fetches pull requests for a repository. State may be "open",
// "closed", or "all"; empty means the provider default (open).
func (c *Client) ListPulls(ctx context.Context, owner, repo, state string) ([]model.PullRequest, error) {
	query := url.Values{}
	if state != "" {
		query.Set("state", state)
	}

	var raw []apiPull
	path := fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
	if err := c.get(ctx, path, query, &raw); err != nil {
		return nil, fmt.Errorf("list pulls %s/%s: %w", owner, repo, err)
	}

	pulls := make([]model.PullRequest, 0, len(raw))
	for _, p := range raw {
		pulls = append(pulls, toPullRequest(p))
	}
	return pulls, nil
}

// FindPullForBranch returns the open pull request whose head is the given
// branch, or nil if none exists.
func (c *Client) FindPullForBranch(ctx context.Context, owner, repo, branch string) (*model.PullRequest, error) {
	query := url.Values{}
	query.Set("state", "open")
	query.Set("head", owner+":"+branch)

	var raw []apiPull
	path := fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
	if err := c.get(ctx, path, query, &raw); err != nil {
		return nil, fmt.Errorf("find pull for %s: %w", branch, err)
	}

	if len(raw) == 0 {
		return nil, nil
	}
	pr := toPullRequest(raw[0])
	return &pr, nil
}

// GetPull fetches a single pull request by number.
func (c *Client) GetPull(ctx context.Context, owner, repo string, number int) (*model.PullRequest, error) {
	var raw apiPull
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	if err := c.get(ctx, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("get pull %d: %w", number, err)
	}
	pr := toPullRequest(raw)
	return &pr, nil
}

// CreatePullOptions holds the fields for opening a pull request.
type CreatePullOptions struct {
	Title string
	Body  string
	Head  string // branch with the changes
	Base  string // branch to merge into
	Draft bool
}

// CreatePull opens a pull request.
func (c *Client) CreatePull(ctx context.Context, owner, repo string, opts CreatePullOptions) (*model.PullRequest, error) {
	payload := createPullRequest{
		Title: opts.Title,
		Body:  opts.Body,
		Head:  opts.Head,
		Base:  opts.Base,
		Draft: opts.Draft,
	}

	var raw apiPull
	path := fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
	if err := c.send(ctx, http.MethodPost, path, payload, &raw); err != nil {
		return nil, fmt.Errorf("create pull for %s: %w", opts.Head, err)
	}

	c.logger.Info("pull request opened",
		"repo", owner+"/"+repo,
		"number", raw.Number,
		"head", opts.Head,
	)

	pr := toPullRequest(raw)
	return &pr, nil
}

// MergePull merges a pull request. Method may be "merge", "squash", or
// "rebase"; empty means the provider default.
func (c *Client) MergePull(ctx context.Context, owner, repo string, number int, method string) error {
	payload := mergePullRequest{MergeMethod: method}

	var result mergeResult
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/merge", owner, repo, number)
	if err := c.send(ctx, http.MethodPut, path, payload, &result); err != nil {
		return fmt.Errorf("merge pull %d: %w", number, err)
	}

	if !result.Merged {
		return fmt.Errorf("merge pull %d: %s", number, result.Message)
	}

	c.logger.Info("pull request merged",
		"repo", owner+"/"+repo,
		"number", number,
		"sha", result.SHA,
	)
	return nil
}
