package scoreline

import (
	"context"
	"time"
)

// RepProfile is display metadata for a participant, owned by the external
// record store and fetched only to enrich leaderboard rows.
type RepProfile struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// ParticipantDirectory resolves participant display metadata from the durable
// record store. Lookups are best-effort: a failure degrades a leaderboard row
// to its bare identifier, it never fails the ranking query.
type ParticipantDirectory interface {
	LookupParticipant(ctx context.Context, orgID, participantID string) (RepProfile, error)
}

// RepStats is the synchronous per-rep query answered for the HTTP layer.
type RepStats struct {
	OrgID            string    `json:"orgId"`
	ParticipantID    string    `json:"participantId"`
	Score            int64     `json:"score"`
	Rank             int       `json:"rank"`
	ParticipantCount int       `json:"participantCount"`
	Name             string    `json:"name,omitempty"`
	AvatarURL        string    `json:"avatarUrl,omitempty"`
	FirstScoredAt    time.Time `json:"firstScoredAt"`
	LastScoredAt     time.Time `json:"lastScoredAt"`
}

type EngineOptions struct {
	Directory  ParticipantDirectory
	ProfileTTL time.Duration
}

// Engine wraps the score store and is the single write path for scores. All
// reads are served straight from the store, so GetTopRankings and GetRank are
// always consistent with the latest completed write for an organization.
type Engine struct {
	store      *ScoreStore
	directory  ParticipantDirectory
	profileTTL time.Duration
	profiles   *TTLCache
}

func NewEngine(store *ScoreStore) *Engine {
	return NewEngineWithOptions(store, EngineOptions{})
}

func NewEngineWithOptions(store *ScoreStore, opts EngineOptions) *Engine {
	profileTTL := opts.ProfileTTL
	if profileTTL <= 0 {
		profileTTL = 5 * time.Minute
	}
	return &Engine{
		store:      store,
		directory:  opts.Directory,
		profileTTL: profileTTL,
		profiles:   NewTTLCache(),
	}
}

func (e *Engine) ApplyScoreDelta(orgID, participantID string, delta int64) int64 {
	return e.store.ApplyDelta(orgID, participantID, delta)
}

func (e *Engine) SetAbsoluteScore(orgID, participantID string, score int64) {
	e.store.SetAbsolute(orgID, participantID, score)
}

func (e *Engine) GetScore(orgID, participantID string) (int64, bool) {
	return e.store.Get(orgID, participantID)
}

func (e *Engine) Remove(orgID, participantID string) {
	e.store.Remove(orgID, participantID)
}

func (e *Engine) ParticipantCount(orgID string) int {
	return e.store.ParticipantCount(orgID)
}

func (e *Engine) Orgs() []string {
	return e.store.Orgs()
}

// FullRanking returns the organization's complete ordered ranking without
// directory enrichment. The history recorder snapshots this form.
func (e *Engine) FullRanking(orgID string) []RankedEntry {
	return e.store.TopN(orgID, 0)
}

// GetTopRankings returns up to count leaderboard entries, enriched with
// display metadata when a directory is configured. count <= 0 returns the full
// ranking. An unknown organization yields an empty slice.
func (e *Engine) GetTopRankings(ctx context.Context, orgID string, count int) []RankedEntry {
	entries := e.store.TopN(orgID, count)
	e.enrich(ctx, orgID, entries)
	return entries
}

// GetRank locates the participant inside a full ranking computation. Linear in
// the organization's participant count, which the business domain keeps small.
func (e *Engine) GetRank(orgID, participantID string) (int, bool) {
	for _, entry := range e.store.TopN(orgID, 0) {
		if entry.ParticipantID == participantID {
			return entry.Rank, true
		}
	}
	return 0, false
}

// GetRepStats answers the per-rep stats query. Returns ErrNotFound for a
// participant with no score entry.
func (e *Engine) GetRepStats(ctx context.Context, orgID, participantID string) (RepStats, error) {
	info, ok := e.store.Entry(orgID, participantID)
	if !ok {
		return RepStats{}, ErrNotFound
	}
	rank, _ := e.GetRank(orgID, participantID)
	stats := RepStats{
		OrgID:            orgID,
		ParticipantID:    participantID,
		Score:            info.Score,
		Rank:             rank,
		ParticipantCount: e.store.ParticipantCount(orgID),
		FirstScoredAt:    info.FirstScoredAt,
		LastScoredAt:     info.UpdatedAt,
	}
	if profile, ok := e.lookupProfile(ctx, orgID, participantID); ok {
		stats.Name = profile.Name
		stats.AvatarURL = profile.AvatarURL
	}
	return stats, nil
}

func (e *Engine) enrich(ctx context.Context, orgID string, entries []RankedEntry) {
	if e.directory == nil {
		return
	}
	for i := range entries {
		profile, ok := e.lookupProfile(ctx, orgID, entries[i].ParticipantID)
		if !ok {
			continue
		}
		entries[i].Name = profile.Name
		entries[i].AvatarURL = profile.AvatarURL
	}
}

func (e *Engine) lookupProfile(ctx context.Context, orgID, participantID string) (RepProfile, bool) {
	if e.directory == nil {
		return RepProfile{}, false
	}
	key := orgID + "|" + participantID
	if cached, ok := e.profiles.Get(key); ok {
		profile, ok := cached.(RepProfile)
		return profile, ok
	}
	profile, err := e.directory.LookupParticipant(ctx, orgID, participantID)
	if err != nil {
		return RepProfile{}, false
	}
	e.profiles.Set(key, profile, e.profileTTL)
	return profile, true
}
