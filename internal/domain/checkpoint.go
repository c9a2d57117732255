package domain

type CheckpointOutcome string

const (
	CheckpointProcessed CheckpointOutcome = "processed"
	CheckpointSkipped   CheckpointOutcome = "skipped"
	CheckpointFailed    CheckpointOutcome = "failed"
)

type CheckpointItem struct {
	AgentID    string
	SessionRef string
	Outcome    CheckpointOutcome
	Reason     string
}

type CheckpointReport struct {
	RunID string
	Items []CheckpointItem
}

func (r CheckpointReport) Count(outcome CheckpointOutcome) int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == outcome {
			n++
		}
	}
	return n
}

func (r CheckpointReport) Processed() int { return r.Count(CheckpointProcessed) }
func (r CheckpointReport) Skipped() int   { return r.Count(CheckpointSkipped) }
func (r CheckpointReport) Failed() int    { return r.Count(CheckpointFailed) }
