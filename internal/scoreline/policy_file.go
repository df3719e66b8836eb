package scoreline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// PolicyHolder publishes the active scoring policy to readers without a lock.
// Event ingestion loads it per event, so a config swap takes effect on the
// next event with no coordination.
type PolicyHolder struct {
	value atomic.Value
}

func NewPolicyHolder(cfg PolicyConfig) *PolicyHolder {
	h := &PolicyHolder{}
	h.value.Store(cfg)
	return h
}

func (h *PolicyHolder) Load() PolicyConfig {
	if h == nil {
		return DefaultPolicyConfig()
	}
	cfg, ok := h.value.Load().(PolicyConfig)
	if !ok {
		return DefaultPolicyConfig()
	}
	return cfg
}

func (h *PolicyHolder) Store(cfg PolicyConfig) {
	if h == nil {
		return
	}
	h.value.Store(cfg)
}

// LoadPolicyFile reads a JSON policy file layered over the defaults, so a file
// only needs to name the knobs it changes.
func LoadPolicyFile(path string) (PolicyConfig, error) {
	cfg := DefaultPolicyConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultPolicyConfig(), fmt.Errorf("%w: policy file %s: %v", ErrInvalidInput, path, err)
	}
	return cfg, nil
}

// WatchPolicyFile reloads the policy file into the holder whenever it changes
// on disk. The watch is placed on the parent directory so editors that replace
// the file via rename are picked up. A malformed file is logged and skipped;
// the previously active config stays in effect. The watcher stops when ctx is
// cancelled.
func WatchPolicyFile(ctx context.Context, path string, holder *PolicyHolder) error {
	if path == "" || holder == nil {
		return ErrInvalidInput
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}
	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				cfg, loadErr := LoadPolicyFile(path)
				if loadErr != nil {
					log.Printf("policy reload skipped for %s: %v", path, loadErr)
					continue
				}
				holder.Store(cfg)
				log.Printf("scoring policy reloaded from %s", path)
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("policy watcher error: %v", watchErr)
			}
		}
	}()
	return nil
}
