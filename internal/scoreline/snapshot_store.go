package scoreline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemorySnapshotStore keeps snapshots in process memory. Used in tests and in
// deployments that accept losing trend history on restart.
type MemorySnapshotStore struct {
	mu        sync.Mutex
	snapshots map[string][]RankingSnapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: map[string][]RankingSnapshot{}}
}

func (s *MemorySnapshotStore) Append(ctx context.Context, snapshot RankingSnapshot) error {
	if snapshot.OrgID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.OrgID] = append(s.snapshots[snapshot.OrgID], snapshot)
	return nil
}

func (s *MemorySnapshotStore) Query(ctx context.Context, orgID string, since time.Time) ([]RankingSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]RankingSnapshot, 0)
	for _, snapshot := range s.snapshots[orgID] {
		if snapshot.TakenAt.Before(since) {
			continue
		}
		result = append(result, snapshot)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TakenAt.Before(result[j].TakenAt)
	})
	return result, nil
}

func (s *MemorySnapshotStore) Close() error {
	return nil
}

type persistedHistory struct {
	Snapshots []RankingSnapshot `json:"snapshots"`
}

// JSONFileSnapshotStore persists snapshots to a single JSON file with atomic
// tmp-and-rename writes. Suitable for single-node durable-local deployments.
type JSONFileSnapshotStore struct {
	mu   sync.Mutex
	path string
}

func NewJSONFileSnapshotStore(path string) *JSONFileSnapshotStore {
	return &JSONFileSnapshotStore{path: strings.TrimSpace(path)}
}

func (s *JSONFileSnapshotStore) Append(ctx context.Context, snapshot RankingSnapshot) error {
	if snapshot.OrgID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	history, err := s.load()
	if err != nil {
		return err
	}
	history.Snapshots = append(history.Snapshots, snapshot)
	return s.save(history)
}

func (s *JSONFileSnapshotStore) Query(ctx context.Context, orgID string, since time.Time) ([]RankingSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, err := s.load()
	if err != nil {
		return nil, err
	}
	result := make([]RankingSnapshot, 0)
	for _, snapshot := range history.Snapshots {
		if snapshot.OrgID != orgID || snapshot.TakenAt.Before(since) {
			continue
		}
		result = append(result, snapshot)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TakenAt.Before(result[j].TakenAt)
	})
	return result, nil
}

func (s *JSONFileSnapshotStore) Close() error {
	return nil
}

func (s *JSONFileSnapshotStore) load() (*persistedHistory, error) {
	if s.path == "" {
		return nil, ErrInvalidInput
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &persistedHistory{}, nil
		}
		return nil, err
	}
	var history persistedHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

func (s *JSONFileSnapshotStore) save(history *persistedHistory) error {
	data, err := json.Marshal(history)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// BuildSnapshotStoreFromDSN selects a snapshot store from a DSN scheme:
// memory://, file:// (or a bare path), postgres://. An empty DSN yields nil so
// the caller can pick its own default.
func BuildSnapshotStoreFromDSN(dsn string) (SnapshotStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewJSONFileSnapshotStore(path), nil
	case "memory", "mem", "inmem":
		return NewMemorySnapshotStore(), nil
	case "postgres", "postgresql":
		return NewPostgresSnapshotStore(dsn)
	case "mysql", "sqlite":
		return nil, fmt.Errorf("%w: snapshot store %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported snapshot store scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed.Scheme == "" {
		return raw, nil
	}
	path := parsed.Path
	if parsed.Host != "" {
		path = parsed.Host + path
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path in dsn %q", ErrInvalidInput, raw)
	}
	return path, nil
}
