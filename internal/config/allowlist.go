package config

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// AllowList is the set of requester identities permitted to submit
// batches. Safe for concurrent reads while a watcher reloads it.
type AllowList struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewAllowList builds an allow-list from static IDs.
func NewAllowList(ids []string) *AllowList {
	al := &AllowList{ids: map[string]struct{}{}}
	al.replace(ids)
	return al
}

// Allowed reports whether id may submit batches.
func (a *AllowList) Allowed(id string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.ids[id]
	return ok
}

// Len returns the number of allowed identities.
func (a *AllowList) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.ids)
}

func (a *AllowList) replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			next[id] = struct{}{}
		}
	}
	a.mu.Lock()
	a.ids = next
	a.mu.Unlock()
}

// LoadFile replaces the list with the file's contents: one ID per line,
// blank lines and # comments skipped.
func (a *AllowList) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	a.replace(ids)
	return nil
}

// Watch reloads the allow-list whenever the file changes, until ctx is
// cancelled. The initial load happens before Watch returns.
//
// The watch goes on the parent directory, not the file: atomic saves
// (write temp, rename over the target) replace the watched inode, and a
// file-level watch dies silently on the first such save.
func (a *AllowList) Watch(ctx context.Context, path string, log *zap.Logger) error {
	if err := a.LoadFile(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}
	target := filepath.Base(path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != target {
					continue
				}
				// Create covers rename-over-target; Remove/Rename of the
				// old inode mean the file is mid-replacement, nothing to
				// read yet.
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := a.LoadFile(path); err != nil {
					log.Warn("allow-list reload failed", zap.String("path", path), zap.Error(err))
					continue
				}
				log.Info("allow-list reloaded", zap.Int("entries", a.Len()))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("allow-list watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
