package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mkalas/sessionkeeper/internal/domain"
)

// Info describes one transcript file on disk. SessionRef is the file
// name stem, which hosts derive from the session's rotating identifier.
type Info struct {
	Path       string
	SessionRef string
	ModTime    time.Time
	Size       int64
}

// Latest returns the most recently modified transcript in dir. The host
// appends to exactly one transcript per live session, so the newest file
// is the active one. Missing directory or no transcripts map to
// domain.ErrNotFound.
func Latest(dir string) (Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Info{}, fmt.Errorf("transcript directory %s: %w", dir, domain.ErrNotFound)
		}
		return Info{}, fmt.Errorf("read transcript directory: %w", err)
	}

	var latest Info
	found := false
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if !found || info.ModTime().After(latest.ModTime) {
			latest = Info{
				Path:       filepath.Join(dir, entry.Name()),
				SessionRef: strings.TrimSuffix(entry.Name(), ".jsonl"),
				ModTime:    info.ModTime(),
				Size:       info.Size(),
			}
			found = true
		}
	}

	if !found {
		return Info{}, fmt.Errorf("no transcripts in %s: %w", dir, domain.ErrNotFound)
	}

	return latest, nil
}
