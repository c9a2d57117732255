package memfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mkalas/sessionkeeper/internal/domain"
)

const (
	SnapshotFile = "current-state.md"
	IndexFile    = "memory-index.md"
	logsDir      = "logs"

	fileMode = 0o600
	dirMode  = 0o700

	snapshotTempPattern = ".current-state-*.md.tmp"
)

// Store owns the rendered artifacts inside one agent's memory
// directory: the current-state snapshot (replaced wholesale) and the
// per-day checkpoint logs (append-only).
type Store struct {
	dir string
}

func NewStore(memoryDir string) *Store {
	return &Store{dir: memoryDir}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) SnapshotPath() string {
	return filepath.Join(s.dir, SnapshotFile)
}

func (s *Store) IndexPath() string {
	return filepath.Join(s.dir, IndexFile)
}

func (s *Store) DayLogPath(date string) string {
	return filepath.Join(s.dir, logsDir, date+".md")
}

// WriteSnapshot renders and atomically replaces the current-state
// artifact. A reader never observes a half-written snapshot.
func (s *Store) WriteSnapshot(snapshot domain.Snapshot) error {
	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return fmt.Errorf("create memory directory: %w", err)
	}

	data := []byte(renderSnapshot(snapshot))

	tempFile, err := os.CreateTemp(s.dir, snapshotTempPattern)
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp snapshot file: %w", err)
	}

	if err := tempFile.Chmod(fileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp snapshot file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp snapshot file: %w", err)
	}

	if err := os.Rename(tempName, s.SnapshotPath()); err != nil {
		return fmt.Errorf("replace snapshot file: %w", err)
	}

	cleanup = false

	return nil
}

// ReadSnapshot returns the rendered snapshot content, or
// domain.ErrNotFound when no extraction has run yet.
func (s *Store) ReadSnapshot() (string, error) {
	data, err := os.ReadFile(s.SnapshotPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("snapshot %s: %w", s.SnapshotPath(), domain.ErrNotFound)
		}
		return "", fmt.Errorf("read snapshot: %w", err)
	}

	return string(data), nil
}

// AppendDayLog appends one checkpoint entry to the entry's calendar-day
// file. Returns false without writing when an entry for the same minute
// bucket already exists; the scheduler may tick more often than content
// changes.
func (s *Store) AppendDayLog(entry domain.DayLogEntry) (bool, error) {
	path := s.DayLogPath(entry.Date())

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read day log: %w", err)
	}

	if hasBucket(string(existing), entry.BucketLabel()) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return false, fmt.Errorf("create day log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode)
	if err != nil {
		return false, fmt.Errorf("open day log: %w", err)
	}
	defer file.Close()

	var block strings.Builder
	if len(existing) == 0 {
		fmt.Fprintf(&block, "# Day Log — %s — %s\n", entry.Date(), entry.AgentID)
	}
	fmt.Fprintf(&block, "\n## %s (%s)\n", entry.BucketLabel(), entry.SessionRef)
	for _, line := range entry.Lines {
		fmt.Fprintf(&block, "- %s\n", line)
	}

	if _, err := file.WriteString(block.String()); err != nil {
		return false, fmt.Errorf("append day log: %w", err)
	}

	return true, nil
}

// hasBucket parses existing entry headers and compares bucket labels
// structurally. Matching on parsed headers rather than raw substring
// search keeps a "14:07" inside log content from shadowing a real
// bucket.
func hasBucket(content, label string) bool {
	for _, line := range strings.Split(content, "\n") {
		rest, ok := strings.CutPrefix(line, "## ")
		if !ok {
			continue
		}
		existing, _, _ := strings.Cut(rest, " ")
		if existing == label {
			return true
		}
	}
	return false
}

func renderSnapshot(snapshot domain.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Current State — %s\n\n", snapshot.AgentID)
	fmt.Fprintf(&b, "Generated: %s\n", snapshot.GeneratedAt.Format("2006-01-02 15:04"))
	if snapshot.SessionRef != "" {
		fmt.Fprintf(&b, "Session: %s\n", snapshot.SessionRef)
	}

	writeSection(&b, "Recent Requests", snapshot.Requests)
	writeSection(&b, "Recent Work", snapshot.Work)

	if len(snapshot.Paths) > 0 {
		b.WriteString("\n## Referenced Files\n")
		for _, path := range snapshot.Paths {
			fmt.Fprintf(&b, "- `%s`\n", path)
		}
	}

	return b.String()
}

func writeSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}

	fmt.Fprintf(b, "\n## %s\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
