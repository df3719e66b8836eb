package scoreline

import (
	"encoding/json"
	"fmt"
)

// RankingPublisher receives fire-and-forget notifications after a score
// change. Implemented by the realtime hub; delivery to individual clients is
// best-effort and must never block ingestion.
type RankingPublisher interface {
	PublishRankings(orgID string)
	PublishCelebration(orgID, participantID string, delta int64)
}

// CallResult is returned to the caller that reported the event, so the acting
// rep sees their own XP update reflected immediately.
type CallResult struct {
	OrgID         string `json:"orgId"`
	ParticipantID string `json:"repId"`
	Delta         int64  `json:"delta"`
	NewScore      int64  `json:"newScore"`
	Rank          int    `json:"rank,omitempty"`
}

// Ingestor is the single entry point for gamification events: it derives the
// XP delta from the active policy, applies it through the ranking engine, and
// notifies the realtime publisher. The apply runs synchronously; the push to
// other connected clients is asynchronous and best-effort.
type Ingestor struct {
	engine    *Engine
	policy    *PolicyHolder
	publisher RankingPublisher
}

func NewIngestor(engine *Engine, policy *PolicyHolder, publisher RankingPublisher) *Ingestor {
	if policy == nil {
		policy = NewPolicyHolder(DefaultPolicyConfig())
	}
	return &Ingestor{
		engine:    engine,
		policy:    policy,
		publisher: publisher,
	}
}

// ParseCallEvent validates a raw payload against the call-event schema and
// decodes it.
func ParseCallEvent(body []byte) (CallEvent, error) {
	if err := ValidateCallEventJSON(body); err != nil {
		return CallEvent{}, err
	}
	var ev CallEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return CallEvent{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return ev, nil
}

// ParseFollowupEvent validates a raw payload against the followup-event
// schema and decodes it.
func ParseFollowupEvent(body []byte) (FollowupEvent, error) {
	if err := ValidateFollowupEventJSON(body); err != nil {
		return FollowupEvent{}, err
	}
	var ev FollowupEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return FollowupEvent{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return ev, nil
}

// RecordCall applies a call-completion event. A zero delta (unanswered call)
// leaves the store untouched and creates no entry for an unknown participant.
// A qualifying disposition additionally announces a celebration to the
// organization's war-room channel.
func (i *Ingestor) RecordCall(ev CallEvent) (CallResult, error) {
	if ev.OrgID == "" || ev.ParticipantID == "" {
		return CallResult{}, fmt.Errorf("%w: orgId and repId are required", ErrInvalidInput)
	}
	cfg := i.policy.Load()
	delta := cfg.ScoreForCall(ev)
	result := CallResult{
		OrgID:         ev.OrgID,
		ParticipantID: ev.ParticipantID,
		Delta:         delta,
	}
	if delta != 0 {
		result.NewScore = i.engine.ApplyScoreDelta(ev.OrgID, ev.ParticipantID, delta)
	} else if score, ok := i.engine.GetScore(ev.OrgID, ev.ParticipantID); ok {
		result.NewScore = score
	}
	if rank, ok := i.engine.GetRank(ev.OrgID, ev.ParticipantID); ok {
		result.Rank = rank
	}
	if delta != 0 && i.publisher != nil {
		i.publisher.PublishRankings(ev.OrgID)
		switch ev.Disposition {
		case DispositionQualified, DispositionConverted:
			i.publisher.PublishCelebration(ev.OrgID, ev.ParticipantID, delta)
		}
	}
	return result, nil
}

// RecordMissedFollowup applies the lateness penalty. Penalties always apply,
// creating an entry if needed; a rep's score may go negative.
func (i *Ingestor) RecordMissedFollowup(ev FollowupEvent) (CallResult, error) {
	if ev.OrgID == "" || ev.ParticipantID == "" {
		return CallResult{}, fmt.Errorf("%w: orgId and repId are required", ErrInvalidInput)
	}
	cfg := i.policy.Load()
	delta := cfg.PenaltyForMissedFollowup(ev.DaysLate)
	result := CallResult{
		OrgID:         ev.OrgID,
		ParticipantID: ev.ParticipantID,
		Delta:         delta,
		NewScore:      i.engine.ApplyScoreDelta(ev.OrgID, ev.ParticipantID, delta),
	}
	if rank, ok := i.engine.GetRank(ev.OrgID, ev.ParticipantID); ok {
		result.Rank = rank
	}
	if i.publisher != nil {
		i.publisher.PublishRankings(ev.OrgID)
	}
	return result, nil
}
