package tracefile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
)

var _ output.TraceStore = (*Store)(nil)

const (
	AutomationFile = "automation.json"
	MemoryFile     = "memory.json"
)

// Store writes the executed nodes and the memory as indented JSON. Each file
// is replaced atomically so a reader never sees a partial snapshot.
type Store struct{}

func New() *Store { return &Store{} }

type automationTrace struct {
	Nodes []*entity.ActionNode `json:"nodes"`
}

func (s *Store) Save(ctx context.Context, dir string, executed []*entity.ActionNode, mem *entity.Memory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}

	nodes, err := json.MarshalIndent(automationTrace{Nodes: executed}, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal automation trace: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, AutomationFile), nodes); err != nil {
		return err
	}

	state, err := mem.MarshalIndent()
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}
	return writeAtomic(filepath.Join(dir, MemoryFile), state)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Load reads a trace back, mainly for inspection tools and tests.
func Load(dir string) ([]*entity.ActionNode, *entity.Memory, error) {
	raw, err := os.ReadFile(filepath.Join(dir, AutomationFile))
	if err != nil {
		return nil, nil, err
	}
	var trace automationTrace
	if err := json.Unmarshal(raw, &trace); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", AutomationFile, err)
	}

	raw, err = os.ReadFile(filepath.Join(dir, MemoryFile))
	if err != nil {
		return nil, nil, err
	}
	mem := entity.NewMemory(nil)
	if err := json.Unmarshal(raw, mem); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", MemoryFile, err)
	}
	return trace.Nodes, mem, nil
}
