package domain

type RotationState string

const (
	RotationObserved       RotationState = "observed"
	RotationExcluded       RotationState = "excluded"
	RotationBelowThreshold RotationState = "below-threshold"
	RotationRequested      RotationState = "rotation-requested"
	RotationRotated        RotationState = "rotated"
	RotationFailed         RotationState = "rotation-failed"
)

// RotationDecision records the outcome of the policy pipeline for one
// observed session.
type RotationDecision struct {
	Session       Session
	State         RotationState
	Reason        string
	NewRotatingID string
}

type RotationReport struct {
	RunID     string
	Preview   bool
	Threshold int64
	Decisions []RotationDecision
}

func (r RotationReport) Count(state RotationState) int {
	n := 0
	for _, d := range r.Decisions {
		if d.State == state {
			n++
		}
	}
	return n
}

func (r RotationReport) Rotated() int  { return r.Count(RotationRotated) }
func (r RotationReport) Failed() int   { return r.Count(RotationFailed) }
func (r RotationReport) Excluded() int { return r.Count(RotationExcluded) }
