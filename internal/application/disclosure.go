package application

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mkalas/sessionkeeper/internal/adapters/memfile"
	"github.com/mkalas/sessionkeeper/internal/domain"
	"github.com/mkalas/sessionkeeper/internal/ports"
)

const (
	// DefaultDisclosureThreshold is the corpus size above which the
	// planner injects the index instead of leaving the host to load the
	// full corpus.
	DefaultDisclosureThreshold = 50 * 1024

	indexBlockName    = "memory-index"
	snapshotBlockName = "current-state"

	indexInstruction = "The memory corpus is large, so only its index is loaded below. " +
		"Read individual memory documents on demand instead of loading the whole corpus."
)

// DisclosureService decides, at agent bootstrap, how much historical
// memory to expose. It reads memory files and appends to the
// caller-provided sink; it writes nothing.
type DisclosureService struct {
	thresholdBytes int64
	logger         *slog.Logger
}

func NewDisclosureService(thresholdBytes int64, logger *slog.Logger) *DisclosureService {
	if thresholdBytes <= 0 {
		thresholdBytes = DefaultDisclosureThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &DisclosureService{thresholdBytes: thresholdBytes, logger: logger}
}

// Plan inspects the agent's memory corpus. Below the threshold it does
// nothing: full-corpus loading is cheap enough to leave to the host's
// default behavior. At or above it, it injects the usage instruction
// with the index content, then the current-state snapshot when one
// exists. A missing index is a soft dependency: logged, never blocking
// bootstrap.
func (s *DisclosureService) Plan(agentID string, store *memfile.Store, sink ports.InjectionSink) error {
	total, err := corpusSize(store.Dir(), store.IndexPath())
	if err != nil {
		return fmt.Errorf("measure memory corpus: %w", err)
	}
	if total < s.thresholdBytes {
		s.logger.Debug("memory corpus below disclosure threshold", "agent", agentID, "bytes", total)
		return nil
	}

	indexContent, err := os.ReadFile(store.IndexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("memory index not built yet, skipping progressive disclosure",
				"agent", agentID, "bytes", total)
			return nil
		}
		return fmt.Errorf("read memory index: %w", err)
	}

	sink.Append(domain.ContextBlock{
		Name:    indexBlockName,
		Content: indexInstruction + "\n\n" + string(indexContent),
	})

	snapshot, err := store.ReadSnapshot()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}

	sink.Append(domain.ContextBlock{Name: snapshotBlockName, Content: snapshot})

	return nil
}

// corpusSize sums memory document sizes, excluding the index artifact
// itself. A missing corpus directory is an empty corpus.
func corpusSize(dir, indexPath string) (int64, error) {
	var total int64

	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() || path == indexPath {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

// BlockCollector is the default injection sink: an ordered list of
// blocks the host renders into the agent's initial context.
type BlockCollector struct {
	blocks []domain.ContextBlock
}

var _ ports.InjectionSink = (*BlockCollector)(nil)

func (c *BlockCollector) Append(block domain.ContextBlock) {
	c.blocks = append(c.blocks, block)
}

func (c *BlockCollector) Blocks() []domain.ContextBlock {
	return c.blocks
}
