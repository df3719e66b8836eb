package scoreline

import (
	"errors"
	"sync"
	"testing"
)

type fakePublisher struct {
	mu           sync.Mutex
	rankings     []string
	celebrations []string
}

func (p *fakePublisher) PublishRankings(orgID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rankings = append(p.rankings, orgID)
}

func (p *fakePublisher) PublishCelebration(orgID, participantID string, delta int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.celebrations = append(p.celebrations, orgID+"|"+participantID)
}

func (p *fakePublisher) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rankings), len(p.celebrations)
}

func newTestIngestor(publisher RankingPublisher) (*Ingestor, *Engine) {
	engine := NewEngine(NewScoreStore())
	return NewIngestor(engine, nil, publisher), engine
}

func TestRecordCallAppliesPolicyDelta(t *testing.T) {
	publisher := &fakePublisher{}
	ingestor, engine := newTestIngestor(publisher)

	result, err := ingestor.RecordCall(CallEvent{
		OrgID:           "org-a",
		ParticipantID:   "rep1",
		Answered:        true,
		DurationSeconds: 180,
		Disposition:     DispositionQualified,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := DefaultPolicyConfig()
	want := cfg.AnsweredBaseXP + 3*cfg.DurationBonusPerMin + cfg.QualifiedBonusXP
	if result.Delta != want || result.NewScore != want {
		t.Fatalf("expected delta %d, got %+v", want, result)
	}
	if result.Rank != 1 {
		t.Fatalf("expected rank 1, got %d", result.Rank)
	}
	if got, _ := engine.GetScore("org-a", "rep1"); got != want {
		t.Fatalf("store not updated, got %d", got)
	}

	rankings, celebrations := publisher.counts()
	if rankings != 1 {
		t.Fatalf("expected 1 rankings publish, got %d", rankings)
	}
	if celebrations != 1 {
		t.Fatalf("expected 1 celebration for qualified call, got %d", celebrations)
	}
}

func TestRecordCallUnansweredIsSilent(t *testing.T) {
	publisher := &fakePublisher{}
	ingestor, engine := newTestIngestor(publisher)

	result, err := ingestor.RecordCall(CallEvent{
		OrgID:         "org-a",
		ParticipantID: "rep1",
		Answered:      false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Delta != 0 || result.NewScore != 0 {
		t.Fatalf("unanswered call must be a zero-delta no-op, got %+v", result)
	}
	if _, ok := engine.GetScore("org-a", "rep1"); ok {
		t.Fatalf("unanswered call must not create a score entry")
	}
	rankings, celebrations := publisher.counts()
	if rankings != 0 || celebrations != 0 {
		t.Fatalf("zero delta must not publish, got %d rankings, %d celebrations", rankings, celebrations)
	}
}

func TestRecordCallNeutralDoesNotCelebrate(t *testing.T) {
	publisher := &fakePublisher{}
	ingestor, _ := newTestIngestor(publisher)

	if _, err := ingestor.RecordCall(CallEvent{
		OrgID:         "org-a",
		ParticipantID: "rep1",
		Answered:      true,
		Disposition:   DispositionNeutral,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rankings, celebrations := publisher.counts()
	if rankings != 1 || celebrations != 0 {
		t.Fatalf("neutral call should publish rankings only, got %d, %d", rankings, celebrations)
	}
}

func TestRecordCallRequiresIdentity(t *testing.T) {
	ingestor, _ := newTestIngestor(nil)
	if _, err := ingestor.RecordCall(CallEvent{ParticipantID: "rep1", Answered: true}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing org, got %v", err)
	}
	if _, err := ingestor.RecordCall(CallEvent{OrgID: "org-a", Answered: true}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing rep, got %v", err)
	}
}

func TestRecordMissedFollowupPenalizesAndPublishes(t *testing.T) {
	publisher := &fakePublisher{}
	ingestor, engine := newTestIngestor(publisher)

	result, err := ingestor.RecordMissedFollowup(FollowupEvent{
		OrgID:         "org-a",
		ParticipantID: "rep1",
		DaysLate:      2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := DefaultPolicyConfig()
	want := int64(2) * cfg.MissedFollowupPerDay
	if result.Delta != want {
		t.Fatalf("expected delta %d, got %d", want, result.Delta)
	}
	// The penalty creates an entry for a previously unseen rep.
	if got, ok := engine.GetScore("org-a", "rep1"); !ok || got != want {
		t.Fatalf("expected score %d, got %d, %t", want, got, ok)
	}
	rankings, _ := publisher.counts()
	if rankings != 1 {
		t.Fatalf("expected penalty to publish rankings, got %d", rankings)
	}
}

func TestNilPublisherIsTolerated(t *testing.T) {
	ingestor, _ := newTestIngestor(nil)
	if _, err := ingestor.RecordCall(CallEvent{
		OrgID:         "org-a",
		ParticipantID: "rep1",
		Answered:      true,
		Disposition:   DispositionConverted,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseCallEvent(t *testing.T) {
	ev, err := ParseCallEvent([]byte(`{
		"orgId": "org-a",
		"repId": "rep1",
		"callId": "c-1",
		"durationSeconds": 240,
		"answered": true,
		"disposition": "qualified"
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.OrgID != "org-a" || ev.ParticipantID != "rep1" || !ev.Answered || ev.DurationSeconds != 240 {
		t.Fatalf("unexpected event: %+v", ev)
	}

	cases := map[string]string{
		"missing answered":    `{"orgId": "org-a", "repId": "rep1"}`,
		"unknown disposition": `{"orgId": "org-a", "repId": "rep1", "answered": true, "disposition": "ghosted"}`,
		"unknown field":       `{"orgId": "org-a", "repId": "rep1", "answered": true, "mood": "great"}`,
		"wrong type":          `{"orgId": "org-a", "repId": "rep1", "answered": "yes"}`,
		"not json":            `answered`,
	}
	for name, payload := range cases {
		if _, err := ParseCallEvent([]byte(payload)); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestParseFollowupEvent(t *testing.T) {
	ev, err := ParseFollowupEvent([]byte(`{
		"orgId": "org-a",
		"repId": "rep1",
		"followupId": "f-1",
		"daysLate": 4
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.DaysLate != 4 || ev.FollowupID != "f-1" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	if _, err := ParseFollowupEvent([]byte(`{"orgId": "org-a", "repId": "rep1"}`)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing daysLate, got %v", err)
	}
}
