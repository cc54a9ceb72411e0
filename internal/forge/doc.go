// Package forge provides a REST client for the git hosting provider.
//
// The dashboard uses it to look up, open, and merge pull requests for the
// branches its worktrees push. The wire shapes follow the GitHub v3 API;
// a compatible provider (GitHub Enterprise, Gitea) works by pointing
// base_url elsewhere.
package forge
