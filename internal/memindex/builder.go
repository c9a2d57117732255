// Package memindex builds the memory index artifact: a compact rendered
// catalog of an agent's memory documents, consumed by the disclosure
// planner at bootstrap. The index is a cache; it is fully regenerated on
// each build and safely deletable.
package memindex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mkalas/sessionkeeper/internal/domain"
)

// bytesPerToken is the fixed ratio used for token estimates.
const bytesPerToken = 4

const maxTitleLength = 60

// categoryRule maps a filename pattern to a category. Rules are
// evaluated in order; the first match wins.
type categoryRule struct {
	match    func(name string) bool
	category string
}

const defaultCategory = "Notes"

var categoryRules = []categoryRule{
	{match: hasPrefix("current-state"), category: "Active Context"},
	{match: datePrefixed, category: "Daily Logs"},
	{match: hasPrefix("decision"), category: "Decisions"},
	{match: hasPrefix("lesson"), category: "Lessons"},
	{match: hasPrefix("project"), category: "Projects"},
	{match: hasPrefix("people"), category: "People"},
}

func hasPrefix(prefix string) func(string) bool {
	return func(name string) bool {
		return strings.HasPrefix(name, prefix)
	}
}

// datePrefixed matches day-log style names like 2026-08-30.md.
func datePrefixed(name string) bool {
	if len(name) < 10 {
		return false
	}
	_, err := time.Parse("2006-01-02", name[:10])
	return err == nil
}

// Categorize assigns a category by filename. Exported for tests and for
// callers that render custom views over the corpus.
func Categorize(name string) string {
	for _, rule := range categoryRules {
		if rule.match(name) {
			return rule.category
		}
	}
	return defaultCategory
}

// accumulator carries corpus-wide running totals through the build
// pass. It is threaded explicitly; nothing global.
type accumulator struct {
	documents int
	sizeBytes int64
	tokens    int64
	markers   domain.MarkerCounts
}

func (a accumulator) add(entry domain.IndexEntry) accumulator {
	a.documents++
	a.sizeBytes += entry.SizeBytes
	a.tokens += entry.TokenEstimate
	a.markers.Merge(entry.Markers)
	return a
}

// Build scans the memory directory (recursively) and produces the
// index, excluding the index artifact itself. A missing directory
// yields an empty index, not an error.
func Build(dir, indexPath string, now time.Time) (domain.MemoryIndex, error) {
	index := domain.MemoryIndex{GeneratedAt: now}
	acc := accumulator{markers: domain.MarkerCounts{}}

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || path == indexPath || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}

		entry, err := scanDocument(path, d.Name())
		if err != nil {
			// A document that vanished or became unreadable mid-scan is
			// left out of this build; the next rebuild picks it up.
			return nil
		}

		index.Entries = append(index.Entries, entry)
		acc = acc.add(entry)
		return nil
	})
	if err != nil {
		return domain.MemoryIndex{}, fmt.Errorf("scan memory directory: %w", err)
	}

	index.Totals = domain.IndexTotals{
		Documents:     acc.documents,
		SizeBytes:     acc.sizeBytes,
		TokenEstimate: acc.tokens,
		Markers:       acc.markers,
	}

	return index, nil
}

func scanDocument(path, name string) (domain.IndexEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.IndexEntry{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.IndexEntry{}, err
	}
	content := string(data)

	markers := domain.MarkerCounts{}
	for _, marker := range domain.Markers() {
		if n := strings.Count(content, marker.Tag()); n > 0 {
			markers[marker] = n
		}
	}

	return domain.IndexEntry{
		Name:          name,
		Title:         documentTitle(content, name),
		Category:      Categorize(name),
		SizeBytes:     info.Size(),
		TokenEstimate: info.Size() / bytesPerToken,
		Markers:       markers,
		Modified:      info.ModTime(),
	}, nil
}

// documentTitle is the first heading line, falling back to the
// filename, truncated.
func documentTitle(content, name string) string {
	for _, line := range strings.Split(content, "\n") {
		if title, ok := strings.CutPrefix(line, "# "); ok {
			return truncateTitle(strings.TrimSpace(title))
		}
	}
	return truncateTitle(strings.TrimSuffix(name, ".md"))
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= maxTitleLength {
		return title
	}
	return string(runes[:maxTitleLength]) + "..."
}

// Render produces the index document. Categories appear as sections,
// each sorted by most recent activity first.
func Render(index domain.MemoryIndex) string {
	byCategory := map[string][]domain.IndexEntry{}
	for _, entry := range index.Entries {
		byCategory[entry.Category] = append(byCategory[entry.Category], entry)
	}

	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var b strings.Builder
	fmt.Fprintf(&b, "# Memory Index\n\nGenerated: %s\n", index.GeneratedAt.Format("2006-01-02 15:04"))

	for _, category := range categories {
		entries := byCategory[category]
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Modified.After(entries[j].Modified)
		})

		fmt.Fprintf(&b, "\n## %s\n", category)
		for _, entry := range entries {
			fmt.Fprintf(&b, "- **%s** (`%s`) — %s, ~%d tokens, modified %s",
				entry.Title, entry.Name, domain.FormatSize(entry.SizeBytes),
				entry.TokenEstimate, entry.Modified.Format("2006-01-02"))
			if markers := renderMarkers(entry.Markers); markers != "" {
				b.WriteString(" — " + markers)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\n## Totals\n- %d documents, %s, ~%d tokens\n",
		index.Totals.Documents, domain.FormatSize(index.Totals.SizeBytes), index.Totals.TokenEstimate)
	if markers := renderMarkers(index.Totals.Markers); markers != "" {
		fmt.Fprintf(&b, "- markers: %s\n", markers)
	}

	return b.String()
}

func renderMarkers(counts domain.MarkerCounts) string {
	parts := make([]string, 0, len(counts))
	for _, marker := range domain.Markers() {
		if n := counts[marker]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", marker, n))
		}
	}
	return strings.Join(parts, " ")
}

// WriteIndex builds, renders, and atomically replaces the index
// artifact at indexPath.
func WriteIndex(dir, indexPath string, now time.Time) (domain.MemoryIndex, error) {
	index, err := Build(dir, indexPath, now)
	if err != nil {
		return domain.MemoryIndex{}, err
	}

	if err := os.MkdirAll(filepath.Dir(indexPath), 0o700); err != nil {
		return domain.MemoryIndex{}, fmt.Errorf("create memory directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(indexPath), ".memory-index-*.md.tmp")
	if err != nil {
		return domain.MemoryIndex{}, fmt.Errorf("create temp index file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.WriteString(Render(index)); err != nil {
		_ = tempFile.Close()
		return domain.MemoryIndex{}, fmt.Errorf("write temp index file: %w", err)
	}
	if err := tempFile.Chmod(0o600); err != nil {
		_ = tempFile.Close()
		return domain.MemoryIndex{}, fmt.Errorf("chmod temp index file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return domain.MemoryIndex{}, fmt.Errorf("close temp index file: %w", err)
	}

	if err := os.Rename(tempName, indexPath); err != nil {
		return domain.MemoryIndex{}, fmt.Errorf("replace index file: %w", err)
	}

	cleanup = false

	return index, nil
}
