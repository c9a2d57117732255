package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mkalas/sessionkeeper/internal/adapters/agentcfg"
	"github.com/mkalas/sessionkeeper/internal/adapters/memfile"
	"github.com/mkalas/sessionkeeper/internal/adapters/transcript"
	"github.com/mkalas/sessionkeeper/internal/domain"
	"github.com/mkalas/sessionkeeper/internal/ports"
)

// CheckpointConfig gates which transcripts are worth extracting.
type CheckpointConfig struct {
	// StaleAfter skips sessions whose transcript has been idle longer
	// than this window.
	StaleAfter time.Duration
	// MinTranscriptBytes skips trivially small transcripts.
	MinTranscriptBytes int64
	// TailLines bounds how much of the transcript is read per pass.
	TailLines int

	Extraction ExtractionConfig
}

func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		StaleAfter:         4 * time.Hour,
		MinTranscriptBytes: 512,
		TailLines:          200,
		Extraction:         DefaultExtractionConfig(),
	}
}

// CheckpointService runs one scheduler tick: extract durable state from
// every configured agent's active transcript. It holds no timer; an
// external mechanism invokes it periodically.
type CheckpointService struct {
	agentsPath     string
	transcriptsDir string
	home           string
	state          ports.StateRepository
	clock          ports.Clock
	logger         *slog.Logger
	cfg            CheckpointConfig
}

func NewCheckpointService(agentsPath, transcriptsDir, home string, state ports.StateRepository, clock ports.Clock, logger *slog.Logger, cfg CheckpointConfig) *CheckpointService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CheckpointService{
		agentsPath:     agentsPath,
		transcriptsDir: transcriptsDir,
		home:           home,
		state:          state,
		clock:          clock,
		logger:         logger,
		cfg:            cfg,
	}
}

// Run processes every known agent sequentially. Only a failure to load
// the agents document is fatal; per-agent failures are isolated into the
// report.
func (s *CheckpointService) Run(ctx context.Context) (domain.CheckpointReport, error) {
	doc, err := agentcfg.Load(s.agentsPath)
	if err != nil {
		return domain.CheckpointReport{}, fmt.Errorf("load agents document: %w", err)
	}

	report := domain.CheckpointReport{RunID: uuid.NewString()}
	logger := s.logger.With("run_id", report.RunID)

	for _, agent := range doc.Agents {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("checkpoint budget exhausted: %w", err)
		}

		item := s.checkpointAgent(doc, agent.ID)
		report.Items = append(report.Items, item)

		switch item.Outcome {
		case domain.CheckpointFailed:
			logger.Warn("checkpoint failed", "agent", item.AgentID, "reason", item.Reason)
		case domain.CheckpointSkipped:
			logger.Debug("checkpoint skipped", "agent", item.AgentID, "reason", item.Reason)
		default:
			logger.Info("checkpoint written", "agent", item.AgentID, "session", item.SessionRef)
		}
	}

	s.recordRun(ctx, report)

	return report, nil
}

func (s *CheckpointService) checkpointAgent(doc agentcfg.Document, agentID string) domain.CheckpointItem {
	item := domain.CheckpointItem{AgentID: agentID}

	info, err := transcript.Latest(filepath.Join(s.transcriptsDir, agentID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			item.Outcome = domain.CheckpointSkipped
			item.Reason = "no active session"
			return item
		}
		item.Outcome = domain.CheckpointFailed
		item.Reason = err.Error()
		return item
	}
	item.SessionRef = info.SessionRef

	now := s.clock.Now()
	if s.cfg.StaleAfter > 0 && now.Sub(info.ModTime) > s.cfg.StaleAfter {
		item.Outcome = domain.CheckpointSkipped
		item.Reason = "transcript stale"
		return item
	}
	if info.Size < s.cfg.MinTranscriptBytes {
		item.Outcome = domain.CheckpointSkipped
		item.Reason = "transcript below minimum size"
		return item
	}

	tail, err := transcript.TailMessages(info.Path, s.cfg.TailLines)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			item.Outcome = domain.CheckpointSkipped
			item.Reason = "transcript removed mid-run"
			return item
		}
		item.Outcome = domain.CheckpointFailed
		item.Reason = err.Error()
		return item
	}

	snapshot, entry, ok := Extract(agentID, info.SessionRef, tail.Messages, now, s.cfg.Extraction)
	if !ok {
		item.Outcome = domain.CheckpointSkipped
		item.Reason = "too few usable messages"
		return item
	}

	store := memfile.NewStore(agentcfg.MemoryDir(doc, agentID, s.home))
	if err := store.WriteSnapshot(snapshot); err != nil {
		item.Outcome = domain.CheckpointFailed
		item.Reason = fmt.Sprintf("write snapshot: %v", err)
		return item
	}
	if _, err := store.AppendDayLog(entry); err != nil {
		item.Outcome = domain.CheckpointFailed
		item.Reason = fmt.Sprintf("append day log: %v", err)
		return item
	}

	item.Outcome = domain.CheckpointProcessed
	return item
}

// recordRun updates the operator ledger. Ledger trouble never fails the
// batch.
func (s *CheckpointService) recordRun(ctx context.Context, report domain.CheckpointReport) {
	if s.state == nil {
		return
	}

	state, err := s.state.Load(ctx)
	if err != nil {
		s.logger.Warn("load state ledger", "error", err)
		return
	}
	if state.Checkpoints == nil {
		state.Checkpoints = map[string]domain.AgentCheckpointState{}
	}

	now := s.clock.Now()
	for _, item := range report.Items {
		state.Checkpoints[item.AgentID] = domain.AgentCheckpointState{
			AgentID:    item.AgentID,
			SessionRef: item.SessionRef,
			Outcome:    item.Outcome,
			Reason:     item.Reason,
			RunID:      report.RunID,
			RanAt:      now,
		}
	}

	if err := s.state.Save(ctx, state); err != nil {
		s.logger.Warn("save state ledger", "error", err)
	}
}
