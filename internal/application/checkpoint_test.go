package application

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mkalas/sessionkeeper/internal/adapters/memfile"
	"github.com/mkalas/sessionkeeper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkpointFixture struct {
	service *CheckpointService
	state   *fakeState
	root    string
	home    string
	now     time.Time
}

// newCheckpointFixture lays out an agents document, a transcripts tree,
// and workspaces under one temp root.
func newCheckpointFixture(t *testing.T, agentIDs ...string) *checkpointFixture {
	t.Helper()

	root := t.TempDir()
	home := filepath.Join(root, "home")

	var doc strings.Builder
	doc.WriteString("defaults:\n  workspace: " + filepath.Join(root, "work", "{agent}") + "\nagents:\n")
	for _, id := range agentIDs {
		doc.WriteString("  - id: " + id + "\n")
	}
	agentsPath := filepath.Join(root, "agents.yaml")
	require.NoError(t, os.WriteFile(agentsPath, []byte(doc.String()), 0o600))

	state := newFakeState()
	now := time.Now()

	service := NewCheckpointService(
		agentsPath,
		filepath.Join(root, "transcripts"),
		home,
		state,
		fixedClock{now: now},
		quietLogger(),
		DefaultCheckpointConfig(),
	)

	return &checkpointFixture{service: service, state: state, root: root, home: home, now: now}
}

func (f *checkpointFixture) writeTranscript(t *testing.T, agentID, sessionRef string, turns int) {
	t.Helper()

	dir := filepath.Join(f.root, "transcripts", agentID)
	require.NoError(t, os.MkdirAll(dir, 0o700))

	var b strings.Builder
	// Pad every line so even a two-turn transcript clears the size gate;
	// the usable-message gate is what the short-transcript test targets.
	pad := strings.Repeat("x", 240)
	for i := 0; i < turns; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		fmt.Fprintf(&b, `{"type":"message","role":%q,"content":"turn %d %s"}`+"\n", role, i, pad)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, sessionRef+".jsonl"), []byte(b.String()), 0o600))
}

func (f *checkpointFixture) workspaceStore(agentID string) *memfile.Store {
	return memfile.NewStore(filepath.Join(f.root, "work", agentID, "memory"))
}

func TestCheckpointWritesSnapshotAndDayLog(t *testing.T) {
	t.Parallel()

	f := newCheckpointFixture(t, "main")
	f.writeTranscript(t, "main", "sess-01", 10)

	report, err := f.service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed())
	assert.NotEmpty(t, report.RunID)

	content, err := f.workspaceStore("main").ReadSnapshot()
	require.NoError(t, err)
	assert.Contains(t, content, "# Current State — main")
	assert.Contains(t, content, "Session: sess-01")
	assert.Contains(t, content, "turn 9")

	entry := domain.DayLogEntry{Bucket: domain.BucketOf(f.now)}
	assert.FileExists(t, f.workspaceStore("main").DayLogPath(entry.Date()))

	ledger := f.state.state.Checkpoints["main"]
	assert.Equal(t, domain.CheckpointProcessed, ledger.Outcome)
	assert.Equal(t, "sess-01", ledger.SessionRef)
}

func TestCheckpointSecondRunSameBucketIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newCheckpointFixture(t, "main")
	f.writeTranscript(t, "main", "sess-01", 10)

	_, err := f.service.Run(context.Background())
	require.NoError(t, err)

	logPath := f.workspaceStore("main").DayLogPath(domain.DayLogEntry{Bucket: domain.BucketOf(f.now)}.Date())
	first, err := os.ReadFile(logPath)
	require.NoError(t, err)

	// Immediate rerun: snapshot overwrite repeats, day-log append is a
	// no-op for the same minute bucket.
	report, err := f.service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed())

	second, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestCheckpointSkipsAgentWithoutTranscript(t *testing.T) {
	t.Parallel()

	f := newCheckpointFixture(t, "main")

	report, err := f.service.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped())
	assert.Equal(t, "no active session", report.Items[0].Reason)

	_, err = f.workspaceStore("main").ReadSnapshot()
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckpointSkipsTooFewUsableMessages(t *testing.T) {
	t.Parallel()

	f := newCheckpointFixture(t, "main")
	f.writeTranscript(t, "main", "sess-01", 2)

	report, err := f.service.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped())
	assert.Equal(t, "too few usable messages", report.Items[0].Reason)

	_, err = f.workspaceStore("main").ReadSnapshot()
	assert.ErrorIs(t, err, domain.ErrNotFound, "a skipped extraction must not write the snapshot")
}

func TestCheckpointSkipsStaleTranscript(t *testing.T) {
	t.Parallel()

	f := newCheckpointFixture(t, "main")
	f.writeTranscript(t, "main", "sess-01", 10)

	old := f.now.Add(-6 * time.Hour)
	path := filepath.Join(f.root, "transcripts", "main", "sess-01.jsonl")
	require.NoError(t, os.Chtimes(path, old, old))

	report, err := f.service.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped())
	assert.Equal(t, "transcript stale", report.Items[0].Reason)
}

func TestCheckpointSkipsUndersizedTranscript(t *testing.T) {
	t.Parallel()

	f := newCheckpointFixture(t, "main")
	dir := filepath.Join(f.root, "transcripts", "main")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sess-01.jsonl"),
		[]byte(`{"type":"message","role":"user","content":"hi there"}`+"\n"), 0o600))

	report, err := f.service.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped())
	assert.Equal(t, "transcript below minimum size", report.Items[0].Reason)
}

func TestCheckpointIsolatesPerAgentFailures(t *testing.T) {
	t.Parallel()

	f := newCheckpointFixture(t, "broken", "healthy")
	f.writeTranscript(t, "broken", "sess-a", 10)
	f.writeTranscript(t, "healthy", "sess-b", 10)

	// Occupy the broken agent's workspace path with a file so creating
	// its memory directory fails.
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "work"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "work", "broken"), []byte("in the way"), 0o600))

	report, err := f.service.Run(context.Background())
	require.NoError(t, err, "per-agent write failures must not abort the batch")
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, report.Processed())

	_, err = f.workspaceStore("healthy").ReadSnapshot()
	assert.NoError(t, err)
}

func TestCheckpointFatalWhenAgentsDocumentMissing(t *testing.T) {
	t.Parallel()

	service := NewCheckpointService(
		filepath.Join(t.TempDir(), "absent.yaml"),
		t.TempDir(),
		t.TempDir(),
		newFakeState(),
		nil,
		quietLogger(),
		DefaultCheckpointConfig(),
	)

	_, err := service.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
