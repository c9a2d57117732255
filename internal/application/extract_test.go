package application

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mkalas/sessionkeeper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(role domain.Role, text string) domain.MessageRecord {
	return domain.MessageRecord{Role: role, Text: text}
}

func TestFilterMessagesRules(t *testing.T) {
	t.Parallel()

	cfg := DefaultExtractionConfig()
	records := []domain.MessageRecord{
		record(domain.RoleRequester, "please fix the watcher race"),
		record(domain.Role("system"), "session resumed"),
		record(domain.RoleResponder, "ok"),
		record(domain.RoleRequester, "   "),
		record(domain.RoleRequester, "NO_RESPONSE_REQUESTED"),
		record(domain.RoleRequester, "/status"),
		record(domain.RoleResponder, "[Request interrupted by user]"),
		record(domain.RoleResponder, "patched the teardown ordering"),
	}

	kept := FilterMessages(records, cfg)
	require.Len(t, kept, 2)
	assert.Equal(t, "please fix the watcher race", kept[0].Text)
	assert.Equal(t, "patched the teardown ordering", kept[1].Text)
}

func TestExtractSkipsBelowMinimumUsableMessages(t *testing.T) {
	t.Parallel()

	records := []domain.MessageRecord{
		record(domain.RoleRequester, "first usable turn"),
		record(domain.RoleResponder, "second usable turn"),
	}

	_, _, ok := Extract("main", "sess-01", records, time.Now(), DefaultExtractionConfig())
	assert.False(t, ok)
}

func TestExtractKeepsFiveMostRecentPerRole(t *testing.T) {
	t.Parallel()

	records := make([]domain.MessageRecord, 0, 20)
	for i := 0; i < 10; i++ {
		records = append(records,
			record(domain.RoleRequester, fmt.Sprintf("request number %d", i)),
			record(domain.RoleResponder, fmt.Sprintf("response number %d", i)),
		)
	}

	now := time.Date(2026, 8, 30, 14, 7, 0, 0, time.UTC)
	snapshot, entry, ok := Extract("main", "sess-01", records, now, DefaultExtractionConfig())
	require.True(t, ok)

	require.Len(t, snapshot.Requests, 5)
	require.Len(t, snapshot.Work, 5)
	assert.Equal(t, "request number 9", snapshot.Requests[0], "newest first")
	assert.Equal(t, "request number 5", snapshot.Requests[4])
	assert.Equal(t, "response number 9", snapshot.Work[0])

	assert.Equal(t, "main", snapshot.AgentID)
	assert.Equal(t, "sess-01", snapshot.SessionRef)
	assert.Equal(t, now, snapshot.GeneratedAt)

	assert.Equal(t, domain.BucketOf(now), entry.Bucket)
	require.Len(t, entry.Lines, 10)
	assert.Equal(t, "requester: request number 9", entry.Lines[0])
	assert.Equal(t, "responder: response number 9", entry.Lines[5])
}

func TestExtractCapsDifferPerDestination(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 600)
	records := []domain.MessageRecord{
		record(domain.RoleRequester, "short request"),
		record(domain.RoleRequester, "another request"),
		record(domain.RoleResponder, long),
	}

	snapshot, entry, ok := Extract("main", "sess-01", records, time.Now(), DefaultExtractionConfig())
	require.True(t, ok)

	require.Len(t, snapshot.Work, 1)
	assert.Len(t, snapshot.Work[0], 503, "snapshot work entries keep 500 chars plus ellipsis")

	var workLine string
	for _, line := range entry.Lines {
		if strings.HasPrefix(line, "responder: ") {
			workLine = strings.TrimPrefix(line, "responder: ")
		}
	}
	assert.Len(t, workLine, 203, "day-log lines are capped at 200 chars plus ellipsis")
}

func TestExtractPathReferences(t *testing.T) {
	t.Parallel()

	records := []domain.MessageRecord{
		record(domain.RoleRequester, "look at internal/watch/watcher.go and cmd/sk/main.go"),
		record(domain.RoleResponder, "see https://example.com/docs/guide.html for context"),
		record(domain.RoleResponder, "ignore node_modules/react/index.js entirely"),
		record(domain.RoleResponder, "internal/watch/watcher.go is the culprit"),
	}

	snapshot, _, ok := Extract("main", "sess-01", records, time.Now(), DefaultExtractionConfig())
	require.True(t, ok)

	assert.Equal(t, []string{"internal/watch/watcher.go", "cmd/sk/main.go"}, snapshot.Paths)
}

func TestExtractPathReferencesBounded(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "pkg/file%02d/thing.go ", i)
	}
	records := []domain.MessageRecord{
		record(domain.RoleRequester, "sweep these files"),
		record(domain.RoleRequester, "and also these"),
		record(domain.RoleResponder, b.String()),
	}

	cfg := DefaultExtractionConfig()
	snapshot, _, ok := Extract("main", "sess-01", records, time.Now(), cfg)
	require.True(t, ok)
	assert.Len(t, snapshot.Paths, cfg.MaxPaths)
}

func TestCapTextFlattensNewlines(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "one two", capText("one\ntwo", 100))
}
