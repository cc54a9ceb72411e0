package forge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://api.example.com", "test-token")

		if c.baseURL != "https://api.example.com" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://api.example.com")
		}
		if c.token != "test-token" {
			t.Errorf("token = %q, want %q", c.token, "test-token")
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
	})

	t.Run("with options", func(t *testing.T) {
		c := NewClient("https://api.example.com", "",
			WithTimeout(5*time.Second),
			WithRetries(5, 2*time.Second),
		)
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
		if c.maxRetries != 5 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 5)
		}
		if c.retryBackoff != 2*time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, 2*time.Second)
		}
	})
}

func TestListPulls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/dmaloney/foreman/pulls" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
		}
		if got := r.URL.Query().Get("state"); got != "open" {
			t.Errorf("state = %q, want %q", got, "open")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"number":   7,
				"title":    "Add retry logic",
				"state":    "open",
				"html_url": "https://example.com/pr/7",
				"head":     map[string]any{"ref": "task/retry"},
				"base":     map[string]any{"ref": "main"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	pulls, err := c.ListPulls(context.Background(), "dmaloney", "foreman", "open")
	if err != nil {
		t.Fatalf("ListPulls failed: %v", err)
	}

	if len(pulls) != 1 {
		t.Fatalf("got %d pulls, want 1", len(pulls))
	}
	pr := pulls[0]
	if pr.Number != 7 {
		t.Errorf("Number = %d, want 7", pr.Number)
	}
	if pr.HeadBranch != "task/retry" {
		t.Errorf("HeadBranch = %q, want %q", pr.HeadBranch, "task/retry")
	}
	if pr.BaseBranch != "main" {
		t.Errorf("BaseBranch = %q, want %q", pr.BaseBranch, "main")
	}
}

func TestFindPullForBranch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("head"); got != "dmaloney:task/retry" {
			t.Errorf("head = %q, want %q", got, "dmaloney:task/retry")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	pr, err := c.FindPullForBranch(context.Background(), "dmaloney", "foreman", "task/retry")
	if err != nil {
		t.Fatalf("FindPullForBranch failed: %v", err)
	}
	if pr != nil {
		t.Errorf("expected nil for no matching pull, got %+v", pr)
	}
}

func TestCreatePull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		var body createPullRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Head != "task/retry" || body.Base != "main" {
			t.Errorf("head/base = %q/%q", body.Head, body.Base)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"number":   8,
			"title":    body.Title,
			"state":    "open",
			"html_url": "https://example.com/pr/8",
			"head":     map[string]any{"ref": body.Head},
			"base":     map[string]any{"ref": body.Base},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	pr, err := c.CreatePull(context.Background(), "dmaloney", "foreman", CreatePullOptions{
		Title: "Add retry logic",
		Head:  "task/retry",
		Base:  "main",
	})
	if err != nil {
		t.Fatalf("CreatePull failed: %v", err)
	}
	if pr.Number != 8 {
		t.Errorf("Number = %d, want 8", pr.Number)
	}
}

func TestMergePull(t *testing.T) {
	t.Run("merged", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut {
				t.Errorf("method = %q, want PUT", r.Method)
			}
			if r.URL.Path != "/repos/dmaloney/foreman/pulls/8/merge" {
				t.Errorf("path = %q", r.URL.Path)
			}
			json.NewEncoder(w).Encode(mergeResult{Merged: true, SHA: "abc123"})
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "tok")
		if err := c.MergePull(context.Background(), "dmaloney", "foreman", 8, "squash"); err != nil {
			t.Fatalf("MergePull failed: %v", err)
		}
	})

	t.Run("not mergeable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(mergeResult{Merged: false, Message: "merge conflict"})
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "tok")
		err := c.MergePull(context.Background(), "dmaloney", "foreman", 8, "")
		if err == nil {
			t.Fatal("expected error for unmerged pull")
		}
	})
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", WithRetries(3, time.Millisecond))
	if _, err := c.ListPulls(context.Background(), "o", "r", ""); err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", WithRetries(3, time.Millisecond))
	_, err := c.ListPulls(context.Background(), "o", "r", "")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestMutatingCallNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", WithRetries(3, time.Millisecond))
	_, err := c.CreatePull(context.Background(), "o", "r", CreatePullOptions{Head: "h", Base: "b"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (POST must not retry)", got)
	}
}
