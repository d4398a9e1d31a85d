package service

import (
	"time"

	"fishtank/internal/forms/models"
)

// DefaultMinDwell is the shortest time a person plausibly needs to fill a form.
const DefaultMinDwell = 3 * time.Second

// Verdict is the guard decision. Reason is set only when Pass is false.
type Verdict struct {
	Pass   bool
	Reason models.SpamReason
}

// Guard rejects attempts that look automated: a filled decoy input, or a
// submission faster than MinDwell after mount. It holds no state.
type Guard struct {
	MinDwell time.Duration
}

func NewGuard(minDwell time.Duration) Guard {
	if minDwell <= 0 {
		minDwell = DefaultMinDwell
	}
	return Guard{MinDwell: minDwell}
}

// Evaluate checks the honeypot first so a filled decoy is reported as a bot
// whatever the elapsed time. Whitespace counts as filled.
func (g Guard) Evaluate(a models.Attempt) Verdict {
	if a.Honeypot != "" {
		return Verdict{Reason: models.ReasonBotDetected}
	}
	if a.Elapsed < g.MinDwell {
		return Verdict{Reason: models.ReasonTooFast}
	}
	return Verdict{Pass: true}
}
