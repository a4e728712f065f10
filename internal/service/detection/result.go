package detection

import (
	"time"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
)

// Outcome classifies how processing of one event ended. Rejection and
// timeout are distinct on purpose: operators must be able to tell "rule
// violated" from "system degraded".
type Outcome int

const (
	OutcomeAdmitted Outcome = iota
	OutcomeRejected
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdmitted:
		return "admitted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Result is what Process returns for one event.
type Result struct {
	Outcome    Outcome                       `json:"outcome"`
	Validation *attendance.ValidationResult  `json:"validation,omitempty"`
	Findings   []*anomaly.Finding            `json:"findings"`
	Elapsed    time.Duration                 `json:"elapsed"`
}

func (r *Result) Admitted() bool {
	return r.Outcome == OutcomeAdmitted
}
