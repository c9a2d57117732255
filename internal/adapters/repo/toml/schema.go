package toml

import (
	"fmt"
	"sort"
	"time"

	"github.com/mkalas/sessionkeeper/internal/domain"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version     int                `toml:"version"`
	Checkpoints []checkpointSchema `toml:"checkpoints"`
	Rotations   []rotationSchema   `toml:"rotations"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported state schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type checkpointSchema struct {
	AgentID    string    `toml:"agent_id"`
	SessionRef string    `toml:"session_ref,omitempty"`
	Outcome    string    `toml:"outcome"`
	Reason     string    `toml:"reason,omitempty"`
	RunID      string    `toml:"run_id"`
	RanAt      time.Time `toml:"ran_at"`
}

type rotationSchema struct {
	Key        string    `toml:"key"`
	RotatingID string    `toml:"rotating_id"`
	RunID      string    `toml:"run_id"`
	RotatedAt  time.Time `toml:"rotated_at"`
}

func toSchema(state domain.RunState) fileSchema {
	file := fileSchema{Version: currentSchemaVersion}

	for _, checkpoint := range state.Checkpoints {
		file.Checkpoints = append(file.Checkpoints, checkpointSchema{
			AgentID:    checkpoint.AgentID,
			SessionRef: checkpoint.SessionRef,
			Outcome:    string(checkpoint.Outcome),
			Reason:     checkpoint.Reason,
			RunID:      checkpoint.RunID,
			RanAt:      checkpoint.RanAt,
		})
	}
	sort.Slice(file.Checkpoints, func(i, j int) bool {
		return file.Checkpoints[i].AgentID < file.Checkpoints[j].AgentID
	})

	for _, rotation := range state.Rotations {
		file.Rotations = append(file.Rotations, rotationSchema{
			Key:        string(rotation.Key),
			RotatingID: rotation.NewRotatingID,
			RunID:      rotation.RunID,
			RotatedAt:  rotation.RotatedAt,
		})
	}
	sort.Slice(file.Rotations, func(i, j int) bool {
		return file.Rotations[i].Key < file.Rotations[j].Key
	})

	return file
}

func fromSchema(file fileSchema) domain.RunState {
	state := domain.NewRunState()

	for _, checkpoint := range file.Checkpoints {
		state.Checkpoints[checkpoint.AgentID] = domain.AgentCheckpointState{
			AgentID:    checkpoint.AgentID,
			SessionRef: checkpoint.SessionRef,
			Outcome:    domain.CheckpointOutcome(checkpoint.Outcome),
			Reason:     checkpoint.Reason,
			RunID:      checkpoint.RunID,
			RanAt:      checkpoint.RanAt,
		}
	}

	for _, rotation := range file.Rotations {
		state.Rotations[domain.SessionKey(rotation.Key)] = domain.SessionRotationState{
			Key:           domain.SessionKey(rotation.Key),
			NewRotatingID: rotation.RotatingID,
			RunID:         rotation.RunID,
			RotatedAt:     rotation.RotatedAt,
		}
	}

	return state
}
