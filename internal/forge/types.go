package forge

import "time"

// apiPull is the provider's wire representation of a pull request.
type apiPull struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	State   string `json:"state"`
	HTMLURL string `json:"html_url"`
	Draft   bool   `json:"draft"`
	Merged  bool   `json:"merged"`
	Head    struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
	UpdatedAt time.Time `json:"updated_at"`
}

// createPullRequest is the body for opening a pull request.
type createPullRequest struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Draft bool   `json:"draft,omitempty"`
}

// mergePullRequest is the body for merging a pull request.
type mergePullRequest struct {
	MergeMethod string `json:"merge_method,omitempty"`
}

// mergeResult is the provider's response to a merge call.
type mergeResult struct {
	Merged  bool   `json:"merged"`
	Message string `json:"message"`
	SHA     string `json:"sha"`
}
