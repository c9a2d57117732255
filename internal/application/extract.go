package application

import (
	"regexp"
	"strings"
	"time"

	"github.com/mkalas/sessionkeeper/internal/domain"
)

// ExtractionConfig bounds what the engine keeps from a transcript tail.
type ExtractionConfig struct {
	// MinMessageChars drops empty and near-empty turns.
	MinMessageChars int
	// MinMessages is the usable-message floor below which extraction
	// skips entirely rather than manufacture noise from a trivial
	// session.
	MinMessages int
	// SnapshotTurns is how many recent turns per role the snapshot keeps.
	SnapshotTurns int
	// RequestCap / WorkCap / DayLogCap are character caps per stored
	// entry. Work entries keep more context than day-log summaries.
	RequestCap int
	WorkCap    int
	DayLogCap  int
	// MaxPaths bounds extracted file-path references.
	MaxPaths int
}

func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		MinMessageChars: 5,
		MinMessages:     3,
		SnapshotTurns:   5,
		RequestCap:      200,
		WorkCap:         500,
		DayLogCap:       200,
		MaxPaths:        10,
	}
}

// controlSentinels are host-internal turns that carry no conversational
// content.
var controlSentinels = map[string]struct{}{
	"NO_RESPONSE_REQUESTED":            {},
	"HEARTBEAT_OK":                     {},
	"[Request interrupted by user]":    {},
	"[Request interrupted by system]":  {},
	"[Conversation compacted by host]": {},
}

const commandPrefix = "/"

// pathPattern is a best-effort match for path-shaped substrings: at
// least one separator and a short trailing extension. Precision is not
// guaranteed; the contract is the exclusion rules and the MaxPaths
// bound.
var pathPattern = regexp.MustCompile(`[A-Za-z0-9_~.-]+(?:/[A-Za-z0-9_.-]+)+\.[A-Za-z0-9]{1,5}\b`)

var excludedPathFragments = []string{
	"node_modules/",
	"vendor/",
	".git/",
	"dist/",
}

// FilterMessages applies the pre-extraction rules: only requester and
// responder turns survive, near-empty text is dropped, control
// sentinels and slash commands are dropped.
func FilterMessages(records []domain.MessageRecord, cfg ExtractionConfig) []domain.MessageRecord {
	kept := make([]domain.MessageRecord, 0, len(records))
	for _, record := range records {
		if record.Role != domain.RoleRequester && record.Role != domain.RoleResponder {
			continue
		}

		text := strings.TrimSpace(record.Text)
		if len(text) < cfg.MinMessageChars {
			continue
		}
		if _, ok := controlSentinels[text]; ok {
			continue
		}
		if strings.HasPrefix(text, commandPrefix) {
			continue
		}

		record.Text = text
		kept = append(kept, record)
	}

	return kept
}

// Extract turns a filtered message sequence into a snapshot and a
// day-log entry body. Returns ok=false when fewer than MinMessages
// usable turns remain; callers must then write nothing.
func Extract(agentID, sessionRef string, records []domain.MessageRecord, now time.Time, cfg ExtractionConfig) (domain.Snapshot, domain.DayLogEntry, bool) {
	usable := FilterMessages(records, cfg)
	if len(usable) < cfg.MinMessages {
		return domain.Snapshot{}, domain.DayLogEntry{}, false
	}

	requests := recentByRole(usable, domain.RoleRequester, cfg.SnapshotTurns)
	work := recentByRole(usable, domain.RoleResponder, cfg.SnapshotTurns)

	snapshot := domain.Snapshot{
		AgentID:     agentID,
		GeneratedAt: now,
		SessionRef:  sessionRef,
		Requests:    capAll(requests, cfg.RequestCap),
		Work:        capAll(work, cfg.WorkCap),
		Paths:       extractPaths(usable, cfg.MaxPaths),
	}

	lines := make([]string, 0, len(requests)+len(work))
	for _, text := range requests {
		lines = append(lines, "requester: "+capText(text, cfg.DayLogCap))
	}
	for _, text := range work {
		lines = append(lines, "responder: "+capText(text, cfg.DayLogCap))
	}

	entry := domain.DayLogEntry{
		AgentID:    agentID,
		Bucket:     domain.BucketOf(now),
		SessionRef: sessionRef,
		Lines:      lines,
	}

	return snapshot, entry, true
}

// recentByRole returns the newest limit turns for one role, newest
// first.
func recentByRole(records []domain.MessageRecord, role domain.Role, limit int) []string {
	texts := make([]string, 0, limit)
	for i := len(records) - 1; i >= 0 && len(texts) < limit; i-- {
		if records[i].Role == role {
			texts = append(texts, records[i].Text)
		}
	}
	return texts
}

func extractPaths(records []domain.MessageRecord, limit int) []string {
	seen := make(map[string]struct{})
	paths := make([]string, 0, limit)

	for _, record := range records {
		for _, start := range pathPattern.FindAllStringIndex(record.Text, -1) {
			match := record.Text[start[0]:start[1]]
			if isExcludedPath(record.Text, start[0], match) {
				continue
			}
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			paths = append(paths, match)
			if len(paths) >= limit {
				return paths
			}
		}
	}

	return paths
}

func isExcludedPath(text string, offset int, match string) bool {
	// Reconstruct the whitespace-delimited token containing the match; a
	// scheme anywhere in it means the match is a URL path, not a file.
	wordStart := strings.LastIndexAny(text[:offset], " \t(<[\"'") + 1
	if strings.Contains(text[wordStart:offset]+match, "://") {
		return true
	}

	for _, fragment := range excludedPathFragments {
		if strings.Contains(match, fragment) {
			return true
		}
	}

	return false
}

func capAll(texts []string, limit int) []string {
	capped := make([]string, len(texts))
	for i, text := range texts {
		capped[i] = capText(text, limit)
	}
	return capped
}

func capText(text string, limit int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
