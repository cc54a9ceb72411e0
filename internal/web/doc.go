// Package web serves the dashboard HTTP API.
//
// It exposes JSON CRUD for repositories, worktrees, and agent instances,
// pull request operations against the hosting provider, and a WebSocket
// terminal endpoint that bridges browser tabs to the stream manager.
package web
