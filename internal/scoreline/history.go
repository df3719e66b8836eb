package scoreline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RankingSnapshot is an immutable, timestamped capture of an organization's
// full ranking. Snapshots are append-only; retention is owned by the store.
type RankingSnapshot struct {
	ID      string        `json:"id"`
	OrgID   string        `json:"orgId"`
	TakenAt time.Time     `json:"takenAt"`
	Entries []RankedEntry `json:"entries"`
}

// SnapshotStore persists ranking snapshots for trend queries.
type SnapshotStore interface {
	Append(ctx context.Context, snapshot RankingSnapshot) error
	Query(ctx context.Context, orgID string, since time.Time) ([]RankingSnapshot, error)
	Close() error
}

type HistoryRecorderOptions struct {
	// Interval between background sweeps over all organizations. Defaults to
	// 24h. The sweep can be disabled entirely for deployments that only
	// trigger snapshots administratively.
	Interval     time.Duration
	DisableSweep bool
}

// HistoryRecorder snapshots live rankings into durable storage, on a fixed
// cadence and on explicit trigger. A store failure is surfaced to the caller
// and never affects the live ranking state.
type HistoryRecorder struct {
	engine   *Engine
	store    SnapshotStore
	interval time.Duration
	disabled bool
	now      func() time.Time

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	started   bool
	startMu   sync.Mutex
}

func NewHistoryRecorder(engine *Engine, store SnapshotStore, opts HistoryRecorderOptions) *HistoryRecorder {
	interval := opts.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HistoryRecorder{
		engine:    engine,
		store:     store,
		interval:  interval,
		disabled:  opts.DisableSweep,
		now:       time.Now,
		runCtx:    ctx,
		runCancel: cancel,
	}
}

// Snapshot captures the organization's current full ranking and appends it to
// the snapshot store. Duplicate snapshots within the same period are allowed;
// uniqueness, if wanted, is the caller's concern.
func (r *HistoryRecorder) Snapshot(ctx context.Context, orgID string) (RankingSnapshot, error) {
	if orgID == "" {
		return RankingSnapshot{}, ErrInvalidInput
	}
	snapshot := RankingSnapshot{
		ID:      uuid.NewString(),
		OrgID:   orgID,
		TakenAt: r.now().UTC(),
		Entries: r.engine.FullRanking(orgID),
	}
	if err := r.store.Append(ctx, snapshot); err != nil {
		return RankingSnapshot{}, err
	}
	return snapshot, nil
}

// Query returns the organization's snapshots within the last sinceDays days,
// ascending by capture time. sinceDays <= 0 defaults to 30.
func (r *HistoryRecorder) Query(ctx context.Context, orgID string, sinceDays int) ([]RankingSnapshot, error) {
	if orgID == "" {
		return nil, ErrInvalidInput
	}
	if sinceDays <= 0 {
		sinceDays = 30
	}
	since := r.now().UTC().AddDate(0, 0, -sinceDays)
	return r.store.Query(ctx, orgID, since)
}

// Start launches the background sweep loop. Safe to call once; a disabled
// sweep makes Start a no-op.
func (r *HistoryRecorder) Start() {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	if r.disabled || r.started {
		return
	}
	r.started = true
	r.wg.Add(1)
	go r.sweepLoop()
}

func (r *HistoryRecorder) sweepLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.runCtx.Done():
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *HistoryRecorder) sweepOnce() {
	for _, orgID := range r.engine.Orgs() {
		if _, err := r.Snapshot(r.runCtx, orgID); err != nil {
			log.Printf("ranking snapshot failed for org %s: %v", orgID, err)
		}
	}
}

func (r *HistoryRecorder) Close() error {
	r.closeOnce.Do(func() {
		r.runCancel()
		r.wg.Wait()
	})
	return nil
}
