package application

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"
	"github.com/mkalas/sessionkeeper/internal/domain"
	"github.com/mkalas/sessionkeeper/internal/ports"
	"golang.org/x/time/rate"
)

// RotationConfig is the threshold-and-exclusion policy. The threshold is
// meant to sit well below the host's own compaction trigger so this
// controller fires first and compaction stays a fallback.
type RotationConfig struct {
	ThresholdTokens int64
	// ExcludePatterns are regular expressions matched against session
	// keys. Matching sessions are never force-rotated (ephemeral and
	// host-managed sessions).
	ExcludePatterns []string
	// CommandsPerSecond rate-limits rotate calls against the gateway.
	CommandsPerSecond float64
}

func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		ThresholdTokens:   150_000,
		CommandsPerSecond: 2,
	}
}

// RotationService polls the session registry and rotates sessions whose
// token count has crossed the threshold.
type RotationService struct {
	gateway   ports.SessionGateway
	state     ports.StateRepository
	clock     ports.Clock
	logger    *slog.Logger
	threshold int64
	exclude   []*regexp.Regexp
	limiter   *rate.Limiter
}

func NewRotationService(gateway ports.SessionGateway, state ports.StateRepository, clock ports.Clock, logger *slog.Logger, cfg RotationConfig) (*RotationService, error) {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	exclude := make([]*regexp.Regexp, 0, len(cfg.ExcludePatterns))
	for _, pattern := range cfg.ExcludePatterns {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile exclusion pattern %q: %w", pattern, err)
		}
		exclude = append(exclude, compiled)
	}

	perSecond := cfg.CommandsPerSecond
	if perSecond <= 0 {
		perSecond = DefaultRotationConfig().CommandsPerSecond
	}

	return &RotationService{
		gateway:   gateway,
		state:     state,
		clock:     clock,
		logger:    logger,
		threshold: cfg.ThresholdTokens,
		exclude:   exclude,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
	}, nil
}

// Run performs one monitor pass. preview executes the full decision
// pipeline without issuing rotate commands. Only the initial list call
// is fatal; per-session rotate failures are isolated into the report.
func (s *RotationService) Run(ctx context.Context, preview bool) (domain.RotationReport, error) {
	report := domain.RotationReport{
		RunID:     uuid.NewString(),
		Preview:   preview,
		Threshold: s.threshold,
	}
	logger := s.logger.With("run_id", report.RunID)

	sessions, err := s.gateway.ListSessions(ctx)
	if err != nil {
		return report, fmt.Errorf("query session registry: %w", err)
	}

	for _, session := range sessions {
		decision := s.decide(ctx, logger, session, preview)
		report.Decisions = append(report.Decisions, decision)
	}

	if !preview {
		s.recordRotations(ctx, report)
	}

	return report, nil
}

func (s *RotationService) decide(ctx context.Context, logger *slog.Logger, session domain.Session, preview bool) domain.RotationDecision {
	decision := domain.RotationDecision{Session: session, State: domain.RotationObserved}

	if pattern := s.matchExclusion(session.Key); pattern != "" {
		decision.State = domain.RotationExcluded
		decision.Reason = fmt.Sprintf("key matches exclusion %q", pattern)
		return decision
	}

	if !session.OverThreshold(s.threshold) {
		decision.State = domain.RotationBelowThreshold
		return decision
	}

	decision.State = domain.RotationRequested
	decision.Reason = fmt.Sprintf("%d tokens >= %d threshold", session.TokenCount, s.threshold)
	if preview {
		return decision
	}

	if err := s.limiter.Wait(ctx); err != nil {
		decision.State = domain.RotationFailed
		decision.Reason = err.Error()
		return decision
	}

	rotatingID, err := s.gateway.Rotate(ctx, session.Key)
	if err != nil {
		logger.Warn("rotate failed", "session", session.Key, "error", err)
		decision.State = domain.RotationFailed
		decision.Reason = err.Error()
		return decision
	}

	logger.Info("session rotated", "session", session.Key, "rotating_id", rotatingID, "tokens", session.TokenCount)
	decision.State = domain.RotationRotated
	decision.NewRotatingID = rotatingID
	return decision
}

func (s *RotationService) matchExclusion(key domain.SessionKey) string {
	for _, pattern := range s.exclude {
		if pattern.MatchString(string(key)) {
			return pattern.String()
		}
	}
	return ""
}

func (s *RotationService) recordRotations(ctx context.Context, report domain.RotationReport) {
	if s.state == nil {
		return
	}

	state, err := s.state.Load(ctx)
	if err != nil {
		s.logger.Warn("load state ledger", "error", err)
		return
	}
	if state.Rotations == nil {
		state.Rotations = map[domain.SessionKey]domain.SessionRotationState{}
	}

	now := s.clock.Now()
	changed := false
	for _, decision := range report.Decisions {
		if decision.State != domain.RotationRotated {
			continue
		}
		state.Rotations[decision.Session.Key] = domain.SessionRotationState{
			Key:           decision.Session.Key,
			NewRotatingID: decision.NewRotatingID,
			RunID:         report.RunID,
			RotatedAt:     now,
		}
		changed = true
	}

	if !changed {
		return
	}

	if err := s.state.Save(ctx, state); err != nil {
		s.logger.Warn("save state ledger", "error", err)
	}
}
