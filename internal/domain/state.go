package domain

import "time"

// RunState is the operator-facing ledger of what the batch commands last
// did. It is an audit trail: core decisions never depend on it.
type RunState struct {
	Checkpoints map[string]AgentCheckpointState
	Rotations   map[SessionKey]SessionRotationState
}

func NewRunState() RunState {
	return RunState{
		Checkpoints: map[string]AgentCheckpointState{},
		Rotations:   map[SessionKey]SessionRotationState{},
	}
}

type AgentCheckpointState struct {
	AgentID    string
	SessionRef string
	Outcome    CheckpointOutcome
	Reason     string
	RunID      string
	RanAt      time.Time
}

type SessionRotationState struct {
	Key           SessionKey
	NewRotatingID string
	RunID         string
	RotatedAt     time.Time
}
