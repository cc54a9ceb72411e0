// Package policy exposes user-tunable connection policy to the stream
// manager. The flags live in a small settings file that operators can
// rewrite at any time; changes apply without a restart.
package policy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Settings is the on-disk shape of the policy file.
type Settings struct {
	// KeepWarm keeps zero-observer session connections open for the idle
	// TTL instead of closing them immediately.
	KeepWarm bool `yaml:"keep_warm"`
}

// DefaultSettings returns the policy applied when no file exists.
func DefaultSettings() Settings {
	return Settings{KeepWarm: true}
}

// Static is a fixed policy, mainly for tests and the probe CLI.
type Static struct {
	KeepWarm bool
}

// KeepWarmEnabled implements stream.Policy.
func (s Static) KeepWarmEnabled() bool { return s.KeepWarm }

// FileStore reads policy from a YAML file and reloads it on change.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	settings Settings

	watcher   *fsnotify.Watcher
	stopWatch chan struct{}
}

// NewFileStore loads the settings file and starts watching it. A missing
// file is not an error; defaults apply until it appears.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &FileStore{
		path:      path,
		logger:    logger,
		settings:  DefaultSettings(),
		stopWatch: make(chan struct{}),
	}

	if err := s.reload(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load policy file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create policy watcher: %w", err)
	}
	s.watcher = watcher

	// Watch the parent directory so create/rename of the file is seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch policy dir: %w", err)
	}

	go s.watchLoop()

	return s, nil
}

// KeepWarmEnabled implements stream.Policy. Read at disconnect time by
// the manager, so file edits take effect on the next disconnect.
func (s *FileStore) KeepWarmEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.KeepWarm
}

// Current returns the full settings snapshot.
func (s *FileStore) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Close stops the file watcher.
func (s *FileStore) Close() error {
	close(s.stopWatch)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *FileStore) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("parse policy yaml: %w", err)
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

func (s *FileStore) watchLoop() {
	for {
		select {
		case <-s.stopWatch:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if err := s.reload(); err != nil {
				s.logger.Warn("failed to reload policy file", "path", s.path, "error", err)
				continue
			}
			s.logger.Info("policy reloaded", "path", s.path, "keep_warm", s.KeepWarmEnabled())
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("policy watcher error", "error", err)
		}
	}
}
