package scoreline

// Disposition is the recorded outcome of a completed call.
type Disposition string

const (
	DispositionQualified     Disposition = "qualified"
	DispositionConverted     Disposition = "converted"
	DispositionCallback      Disposition = "callback"
	DispositionNeutral       Disposition = "neutral"
	DispositionNotInterested Disposition = "not_interested"
)

// CallEvent is the payload of a call-completion or call-outcome-update event
// as delivered by the call record system.
type CallEvent struct {
	OrgID           string      `json:"orgId"`
	ParticipantID   string      `json:"repId"`
	CallID          string      `json:"callId,omitempty"`
	DurationSeconds int         `json:"durationSeconds,omitempty"`
	Answered        bool        `json:"answered"`
	Disposition     Disposition `json:"disposition,omitempty"`
	OccurredAt      string      `json:"occurredAt,omitempty"`
}

// FollowupEvent reports a follow-up task that was missed by DaysLate days.
type FollowupEvent struct {
	OrgID         string `json:"orgId"`
	ParticipantID string `json:"repId"`
	FollowupID    string `json:"followupId,omitempty"`
	DaysLate      int    `json:"daysLate"`
}

// PolicyConfig holds the XP rule knobs. All scoring functions are pure over
// this value and the event payload, which keeps them trivially testable and
// lets the active config be swapped at runtime without locking.
type PolicyConfig struct {
	AnsweredBaseXP       int64 `json:"answeredBaseXp"`
	DurationBonusPerMin  int64 `json:"durationBonusPerMin"`
	DurationBonusMaxXP   int64 `json:"durationBonusMaxXp"`
	QualifiedBonusXP     int64 `json:"qualifiedBonusXp"`
	NeutralBonusXP       int64 `json:"neutralBonusXp"`
	MissedFollowupPerDay int64 `json:"missedFollowupPerDay"`
	MissedFollowupFloor  int64 `json:"missedFollowupFloor"`
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		AnsweredBaseXP:       10,
		DurationBonusPerMin:  2,
		DurationBonusMaxXP:   20,
		QualifiedBonusXP:     50,
		NeutralBonusXP:       5,
		MissedFollowupPerDay: -5,
		MissedFollowupFloor:  -50,
	}
}

// ScoreForCall derives the XP delta for a completed call. Unanswered calls
// award nothing. The duration bonus grows per full minute of talk time and is
// capped at DurationBonusMaxXP. A qualifying or converting disposition earns
// the large fixed bonus, a neutral/callback disposition the small one, and an
// explicit "not interested" earns no bonus but no penalty. A missing or
// negative duration contributes zero to the duration term.
func (c PolicyConfig) ScoreForCall(ev CallEvent) int64 {
	if !ev.Answered {
		return 0
	}
	delta := c.AnsweredBaseXP
	if ev.DurationSeconds > 0 {
		bonus := int64(ev.DurationSeconds/60) * c.DurationBonusPerMin
		if bonus > c.DurationBonusMaxXP {
			bonus = c.DurationBonusMaxXP
		}
		delta += bonus
	}
	switch ev.Disposition {
	case DispositionQualified, DispositionConverted:
		delta += c.QualifiedBonusXP
	case DispositionCallback, DispositionNeutral:
		delta += c.NeutralBonusXP
	}
	return delta
}

// PenaltyForMissedFollowup returns a negative delta whose magnitude grows with
// lateness, clamped at MissedFollowupFloor so a backlog of stale follow-ups
// cannot spiral a rep's score without bound. Lateness below one day still
// costs one day's penalty.
func (c PolicyConfig) PenaltyForMissedFollowup(daysLate int) int64 {
	if daysLate < 1 {
		daysLate = 1
	}
	penalty := int64(daysLate) * c.MissedFollowupPerDay
	if penalty < c.MissedFollowupFloor {
		penalty = c.MissedFollowupFloor
	}
	return penalty
}
