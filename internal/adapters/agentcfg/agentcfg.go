package agentcfg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mkalas/sessionkeeper/internal/domain"
	"gopkg.in/yaml.v3"
)

// Document is the operator-maintained roster of known agents.
type Document struct {
	Defaults Defaults `yaml:"defaults"`
	Agents   []Agent  `yaml:"agents"`
}

type Defaults struct {
	Workspace string `yaml:"workspace"`
}

type Agent struct {
	ID        string `yaml:"id"`
	Workspace string `yaml:"workspace"`
}

func (d Document) Agent(id string) (Agent, bool) {
	for _, agent := range d.Agents {
		if agent.ID == id {
			return agent, true
		}
	}
	return Agent{}, false
}

// Load reads the agents document. A missing file maps to
// domain.ErrNotFound so callers can distinguish "not configured yet"
// from a broken document.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, fmt.Errorf("agents document %s: %w", path, domain.ErrNotFound)
		}
		return Document{}, fmt.Errorf("read agents document: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse agents document: %w", err)
	}

	for _, agent := range doc.Agents {
		if strings.TrimSpace(agent.ID) == "" {
			return Document{}, errors.New("agents document: agent with empty id")
		}
	}

	return doc, nil
}

// ResolveWorkspace maps an agent ID to its workspace directory. It is a
// pure function of the document, the ID, and the injected home
// directory; no environment is consulted. Fallback order: per-agent
// override, then the default workspace (with "{agent}" substitution, or
// the agent ID joined when no placeholder is present), then a
// home-derived path.
func ResolveWorkspace(doc Document, agentID, home string) string {
	if agent, ok := doc.Agent(agentID); ok && agent.Workspace != "" {
		return expandHome(agent.Workspace, home)
	}

	if doc.Defaults.Workspace != "" {
		base := expandHome(doc.Defaults.Workspace, home)
		if strings.Contains(base, "{agent}") {
			return strings.ReplaceAll(base, "{agent}", agentID)
		}
		return filepath.Join(base, agentID)
	}

	return filepath.Join(home, ".sessionkeeper", "agents", agentID)
}

// MemoryDir is the agent's durable memory corpus location within its
// workspace.
func MemoryDir(doc Document, agentID, home string) string {
	return filepath.Join(ResolveWorkspace(doc, agentID, home), "memory")
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
