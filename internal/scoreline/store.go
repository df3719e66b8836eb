package scoreline

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
)

// RankedEntry is one row of an organization's leaderboard. Rank is 1-based and
// dense over the full participant set, not just the returned page. Name and
// AvatarURL are filled in only when a participant directory is configured.
type RankedEntry struct {
	ParticipantID string `json:"participantId"`
	Score         int64  `json:"score"`
	Rank          int    `json:"rank"`
	Name          string `json:"name,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
}

type ScoreEntryInfo struct {
	Score         int64     `json:"score"`
	FirstScoredAt time.Time `json:"firstScoredAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type scoreEntry struct {
	score         int64
	firstScoredAt time.Time
	updatedAt     time.Time
}

// ScoreStore holds the authoritative per-organization XP totals in memory.
// Rankings are derived from it on demand and are intentionally ephemeral;
// durable trend data lives in ranking snapshots, not here.
type ScoreStore struct {
	mu   sync.RWMutex
	orgs map[string]map[string]*scoreEntry
	now  func() time.Time
}

func NewScoreStore() *ScoreStore {
	return &ScoreStore{
		orgs: map[string]map[string]*scoreEntry{},
		now:  time.Now,
	}
}

// ApplyDelta adds delta to the participant's score and returns the new value.
// A zero delta never creates an entry; on an existing entry it returns the
// current score unchanged.
func (s *ScoreStore) ApplyDelta(orgID, participantID string, delta int64) int64 {
	if orgID == "" || participantID == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	participants := s.orgs[orgID]
	entry, ok := participants[participantID]
	if !ok {
		if delta == 0 {
			return 0
		}
		if participants == nil {
			participants = map[string]*scoreEntry{}
			s.orgs[orgID] = participants
		}
		entry = &scoreEntry{firstScoredAt: s.now().UTC()}
		participants[participantID] = entry
	}
	if delta == 0 {
		return entry.score
	}
	entry.score += delta
	entry.updatedAt = s.now().UTC()
	return entry.score
}

// SetAbsolute overwrites the participant's score unconditionally.
func (s *ScoreStore) SetAbsolute(orgID, participantID string, score int64) {
	if orgID == "" || participantID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	participants := s.orgs[orgID]
	if participants == nil {
		participants = map[string]*scoreEntry{}
		s.orgs[orgID] = participants
	}
	entry, ok := participants[participantID]
	if !ok {
		entry = &scoreEntry{firstScoredAt: s.now().UTC()}
		participants[participantID] = entry
	}
	entry.score = score
	entry.updatedAt = s.now().UTC()
}

func (s *ScoreStore) Get(orgID, participantID string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.orgs[orgID][participantID]
	if !ok {
		return 0, false
	}
	return entry.score, true
}

func (s *ScoreStore) Entry(orgID, participantID string) (ScoreEntryInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.orgs[orgID][participantID]
	if !ok {
		return ScoreEntryInfo{}, false
	}
	return ScoreEntryInfo{
		Score:         entry.score,
		FirstScoredAt: entry.firstScoredAt,
		UpdatedAt:     entry.updatedAt,
	}, true
}

// Remove deletes the participant's entry entirely. Removed participants do not
// appear in TopN and Get reports them as absent, not zero.
func (s *ScoreStore) Remove(orgID, participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	participants := s.orgs[orgID]
	if participants == nil {
		return
	}
	delete(participants, participantID)
	if len(participants) == 0 {
		delete(s.orgs, orgID)
	}
}

// TopN returns up to n leaderboard entries for the organization, sorted by
// score descending. Ties are broken by ascending participant ID so the order
// is deterministic across calls and restarts. n <= 0 returns the full ranking.
// Ranks are assigned over the full participant set before truncation.
func (s *ScoreStore) TopN(orgID string, n int) []RankedEntry {
	s.mu.RLock()
	participants := s.orgs[orgID]
	entries := make([]RankedEntry, 0, len(participants))
	for participantID, entry := range participants {
		entries = append(entries, RankedEntry{
			ParticipantID: participantID,
			Score:         entry.score,
		})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func (s *ScoreStore) ParticipantCount(orgID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orgs[orgID])
}

// Orgs lists every organization that currently has at least one score entry.
func (s *ScoreStore) Orgs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orgs := make([]string, 0, len(s.orgs))
	for orgID := range s.orgs {
		orgs = append(orgs, orgID)
	}
	sort.Strings(orgs)
	return orgs
}
