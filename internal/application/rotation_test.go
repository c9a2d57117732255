package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mkalas/sessionkeeper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRotationService(t *testing.T, gw *fakeGateway, state *fakeState, cfg RotationConfig) *RotationService {
	t.Helper()

	if cfg.CommandsPerSecond == 0 {
		cfg.CommandsPerSecond = 1000
	}

	service, err := NewRotationService(gw, state, fixedClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}, quietLogger(), cfg)
	require.NoError(t, err)

	return service
}

func TestRotationRotatesSessionOverThreshold(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{sessions: []domain.Session{
		{Key: "agent:main:discord", RotatingID: "sess-01", TokenCount: 160_000},
	}}
	state := newFakeState()
	service := newRotationService(t, gw, state, RotationConfig{ThresholdTokens: 150_000})

	report, err := service.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, []domain.SessionKey{"agent:main:discord"}, gw.rotated)
	require.Len(t, report.Decisions, 1)
	assert.Equal(t, domain.RotationRotated, report.Decisions[0].State)
	assert.Equal(t, "rotated-agent:main:discord", report.Decisions[0].NewRotatingID)

	recorded := state.state.Rotations["agent:main:discord"]
	assert.Equal(t, "rotated-agent:main:discord", recorded.NewRotatingID)
	assert.Equal(t, report.RunID, recorded.RunID)
}

func TestRotationLeavesSessionsBelowThreshold(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{sessions: []domain.Session{
		{Key: "agent:main:discord", TokenCount: 149_999},
	}}
	service := newRotationService(t, gw, newFakeState(), RotationConfig{ThresholdTokens: 150_000})

	report, err := service.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Empty(t, gw.rotated)
	assert.Equal(t, domain.RotationBelowThreshold, report.Decisions[0].State)
}

func TestRotationNeverTouchesExcludedSessions(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{sessions: []domain.Session{
		{Key: "agent:main:subagent:task-42", TokenCount: 900_000},
		{Key: "agent:main:cron", TokenCount: 500_000},
	}}
	service := newRotationService(t, gw, newFakeState(), RotationConfig{
		ThresholdTokens: 150_000,
		ExcludePatterns: []string{`:subagent:`, `:cron$`},
	})

	report, err := service.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Empty(t, gw.rotated, "excluded sessions must never be rotated regardless of token count")
	assert.Equal(t, 2, report.Excluded())
	assert.Contains(t, report.Decisions[0].Reason, ":subagent:")
}

func TestRotationPreviewIssuesNoCommands(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{sessions: []domain.Session{
		{Key: "agent:main:discord", TokenCount: 200_000},
	}}
	state := newFakeState()
	service := newRotationService(t, gw, state, RotationConfig{ThresholdTokens: 150_000})

	report, err := service.Run(context.Background(), true)
	require.NoError(t, err)

	assert.Empty(t, gw.rotated)
	assert.True(t, report.Preview)
	assert.Equal(t, domain.RotationRequested, report.Decisions[0].State)
	assert.Zero(t, state.saves, "preview must not write the ledger")
}

func TestRotationIsolatesPerSessionFailures(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		sessions: []domain.Session{
			{Key: "agent:main:discord", TokenCount: 200_000},
			{Key: "agent:ops:discord", TokenCount: 180_000},
		},
		rotateErr: map[domain.SessionKey]error{
			"agent:main:discord": errors.New("gateway refused rotation"),
		},
	}
	service := newRotationService(t, gw, newFakeState(), RotationConfig{ThresholdTokens: 150_000})

	report, err := service.Run(context.Background(), false)
	require.NoError(t, err, "a per-session rotate failure must not fail the run")

	assert.Equal(t, []domain.SessionKey{"agent:ops:discord"}, gw.rotated)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, report.Rotated())
}

func TestRotationListFailureIsFatal(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{listErr: domain.ErrRegistryUnavailable}
	service := newRotationService(t, gw, newFakeState(), RotationConfig{ThresholdTokens: 150_000})

	_, err := service.Run(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRegistryUnavailable)
}

func TestRotationRejectsInvalidExclusionPattern(t *testing.T) {
	t.Parallel()

	_, err := NewRotationService(&fakeGateway{}, newFakeState(), nil, quietLogger(), RotationConfig{
		ThresholdTokens: 150_000,
		ExcludePatterns: []string{"("},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile exclusion pattern")
}
