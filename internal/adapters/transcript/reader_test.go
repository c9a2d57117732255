package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mkalas/sessionkeeper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "session.jsonl")
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func messageLine(role, text string) string {
	return fmt.Sprintf(`{"type":"message","role":%q,"content":%q,"timestamp":"2026-08-30T10:00:00Z"}`, role, text)
}

func TestTailMessagesMissingFile(t *testing.T) {
	t.Parallel()

	_, err := TailMessages(filepath.Join(t.TempDir(), "absent.jsonl"), 50)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTailMessagesNormalizesRolesAndOrder(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t,
		messageLine("user", "fix the flaky watcher test"),
		messageLine("assistant", "reproduced it, the teardown races the timer"),
		messageLine("system", "housekeeping"),
	)

	result, err := TailMessages(path, 50)
	require.NoError(t, err)
	require.Len(t, result.Messages, 3)

	assert.Equal(t, domain.RoleRequester, result.Messages[0].Role)
	assert.Equal(t, "fix the flaky watcher test", result.Messages[0].Text)
	assert.Equal(t, domain.RoleResponder, result.Messages[1].Role)
	assert.Equal(t, domain.Role("system"), result.Messages[2].Role)
	assert.False(t, result.Messages[0].Timestamp.IsZero())
}

func TestTailMessagesHonorsMaxLines(t *testing.T) {
	t.Parallel()

	lines := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		lines = append(lines, messageLine("user", fmt.Sprintf("turn %d", i)))
	}
	path := writeTranscript(t, lines...)

	result, err := TailMessages(path, 5)
	require.NoError(t, err)
	require.Len(t, result.Messages, 5)
	assert.Equal(t, "turn 15", result.Messages[0].Text)
	assert.Equal(t, "turn 19", result.Messages[4].Text)
}

func TestTailMessagesCrossesChunkBoundary(t *testing.T) {
	t.Parallel()

	// Each line is ~2KB so the tail read has to stitch multiple 32KB
	// chunks together.
	padding := strings.Repeat("x", 2048)
	lines := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		lines = append(lines, messageLine("user", fmt.Sprintf("turn %d %s", i, padding)))
	}
	path := writeTranscript(t, lines...)

	result, err := TailMessages(path, 30)
	require.NoError(t, err)
	require.Len(t, result.Messages, 30)
	assert.True(t, strings.HasPrefix(result.Messages[0].Text, "turn 10 "))
	assert.True(t, strings.HasPrefix(result.Messages[29].Text, "turn 39 "))
}

func TestTailMessagesDropsMalformedAndNonMessageLines(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t,
		`{"type":"summary","content":"not a message"}`,
		`this is not json at all`,
		messageLine("user", "still here"),
	)

	result, err := TailMessages(path, 50)
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "still here", result.Messages[0].Text)
	assert.Equal(t, 2, result.Dropped)
}

func TestTailMessagesToleratesPartialFinalLine(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t, messageLine("user", "complete turn"))
	// Simulate the host mid-append: a torn line with no trailing newline.
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = file.WriteString(`{"type":"message","role":"assistant","cont`)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	result, err := TailMessages(path, 50)
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "complete turn", result.Messages[0].Text)
	assert.Equal(t, 1, result.Dropped)
}

func TestTailMessagesDecodesBlockContent(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t,
		`{"type":"message","message":{"role":"assistant","model":"sonnet","content":[{"type":"text","text":"first part"},{"type":"tool_use","text":"ignored"},{"type":"text","text":"second part"}]}}`,
	)

	result, err := TailMessages(path, 50)
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, domain.RoleResponder, result.Messages[0].Role)
	assert.Equal(t, "first part\nsecond part", result.Messages[0].Text)
	assert.Equal(t, "sonnet", result.Messages[0].Model)
}

func TestTailMessagesEmptyFile(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t)

	result, err := TailMessages(path, 50)
	require.NoError(t, err)
	assert.Empty(t, result.Messages)
	assert.Zero(t, result.Dropped)
}
