package scoreline

import (
	"sync"
	"testing"
)

func TestApplyDeltaAccumulates(t *testing.T) {
	store := NewScoreStore()

	if got := store.ApplyDelta("org-a", "rep1", 50); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	if got := store.ApplyDelta("org-a", "rep1", 30); got != 80 {
		t.Fatalf("expected 80, got %d", got)
	}
	if got := store.ApplyDelta("org-a", "rep1", -100); got != -20 {
		t.Fatalf("expected -20 after penalty, got %d", got)
	}
}

func TestApplyDeltaConcurrentNoLostUpdates(t *testing.T) {
	store := NewScoreStore()
	const workers = 16
	const perWorker = 200

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				store.ApplyDelta("org-a", "rep1", 3)
				store.ApplyDelta("org-a", "rep1", -1)
			}
		}()
	}
	wg.Wait()

	want := int64(workers * perWorker * 2)
	got, ok := store.Get("org-a", "rep1")
	if !ok {
		t.Fatalf("expected score entry to exist")
	}
	if got != want {
		t.Fatalf("expected final score %d, got %d", want, got)
	}
}

func TestZeroDeltaDoesNotCreateEntry(t *testing.T) {
	store := NewScoreStore()

	if got := store.ApplyDelta("org-a", "rep1", 0); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if _, ok := store.Get("org-a", "rep1"); ok {
		t.Fatalf("zero delta must not create an entry")
	}
	if count := store.ParticipantCount("org-a"); count != 0 {
		t.Fatalf("expected 0 participants, got %d", count)
	}

	store.ApplyDelta("org-a", "rep1", 10)
	if got := store.ApplyDelta("org-a", "rep1", 0); got != 10 {
		t.Fatalf("zero delta on existing entry should return current score, got %d", got)
	}
}

func TestSetAbsoluteOverwrites(t *testing.T) {
	store := NewScoreStore()

	store.ApplyDelta("org-a", "rep1", 40)
	store.SetAbsolute("org-a", "rep1", 7)
	if got, _ := store.Get("org-a", "rep1"); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}

	store.SetAbsolute("org-a", "rep2", -3)
	if got, _ := store.Get("org-a", "rep2"); got != -3 {
		t.Fatalf("expected -3, got %d", got)
	}
}

func TestRemoveIsDistinctFromZero(t *testing.T) {
	store := NewScoreStore()

	store.ApplyDelta("org-a", "rep1", 25)
	store.Remove("org-a", "rep1")

	if _, ok := store.Get("org-a", "rep1"); ok {
		t.Fatalf("removed participant must be absent, not zero")
	}
	for _, entry := range store.TopN("org-a", 10) {
		if entry.ParticipantID == "rep1" {
			t.Fatalf("removed participant must not appear in TopN")
		}
	}
	// Removing the last participant drops the org entirely.
	if orgs := store.Orgs(); len(orgs) != 0 {
		t.Fatalf("expected no orgs, got %v", orgs)
	}
}

func TestTopNOrderingAndTieBreak(t *testing.T) {
	store := NewScoreStore()

	store.ApplyDelta("org-a", "rep1", 50)
	store.ApplyDelta("org-a", "rep2", 80)
	store.ApplyDelta("org-a", "rep1", 30)

	top := store.TopN("org-a", 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	// Both reps sit at 80; ties are broken by ascending participant ID.
	if top[0].ParticipantID != "rep1" || top[0].Score != 80 || top[0].Rank != 1 {
		t.Fatalf("unexpected first entry: %+v", top[0])
	}
	if top[1].ParticipantID != "rep2" || top[1].Score != 80 || top[1].Rank != 2 {
		t.Fatalf("unexpected second entry: %+v", top[1])
	}
	if count := store.ParticipantCount("org-a"); count != 2 {
		t.Fatalf("expected 2 participants, got %d", count)
	}
}

func TestTopNRanksAreDenseAndDescending(t *testing.T) {
	store := NewScoreStore()
	store.ApplyDelta("org-a", "low", 5)
	store.ApplyDelta("org-a", "mid", 50)
	store.ApplyDelta("org-a", "high", 500)
	store.ApplyDelta("org-a", "negative", -10)

	top := store.TopN("org-a", 0)
	if len(top) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(top))
	}
	for i, entry := range top {
		if entry.Rank != i+1 {
			t.Fatalf("expected dense rank %d, got %d", i+1, entry.Rank)
		}
		if i > 0 && top[i-1].Score < entry.Score {
			t.Fatalf("scores not descending at index %d", i)
		}
	}
}

func TestTopNLimitsPageNotRankDomain(t *testing.T) {
	store := NewScoreStore()
	store.ApplyDelta("org-a", "a", 1)
	store.ApplyDelta("org-a", "b", 2)
	store.ApplyDelta("org-a", "c", 3)

	top := store.TopN("org-a", 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].ParticipantID != "c" || top[0].Rank != 1 {
		t.Fatalf("unexpected first entry: %+v", top[0])
	}
	if top[1].ParticipantID != "b" || top[1].Rank != 2 {
		t.Fatalf("unexpected second entry: %+v", top[1])
	}
}

func TestUnknownOrgIsEmptyNotError(t *testing.T) {
	store := NewScoreStore()

	if top := store.TopN("nowhere", 10); len(top) != 0 {
		t.Fatalf("expected empty TopN, got %v", top)
	}
	if _, ok := store.Get("nowhere", "rep1"); ok {
		t.Fatalf("expected absent score")
	}
	if count := store.ParticipantCount("nowhere"); count != 0 {
		t.Fatalf("expected 0 participants, got %d", count)
	}
}

func TestOrgIsolation(t *testing.T) {
	store := NewScoreStore()
	store.ApplyDelta("org-a", "rep1", 10)
	store.ApplyDelta("org-b", "rep1", 99)

	if got, _ := store.Get("org-a", "rep1"); got != 10 {
		t.Fatalf("expected 10 in org-a, got %d", got)
	}
	if got, _ := store.Get("org-b", "rep1"); got != 99 {
		t.Fatalf("expected 99 in org-b, got %d", got)
	}
	top := store.TopN("org-a", 10)
	if len(top) != 1 || top[0].Score != 10 {
		t.Fatalf("org-a ranking leaked foreign state: %v", top)
	}
}
