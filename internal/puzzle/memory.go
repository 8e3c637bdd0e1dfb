package puzzle

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

//go:embed puzzles.yaml
var defaultSeed []byte

// MemoryCatalog serves puzzles from a YAML seed held in memory.
type MemoryCatalog struct {
	mu   sync.RWMutex
	byID map[int]Puzzle
}

type seedFile struct {
	Puzzles []Puzzle `yaml:"puzzles"`
}

// NewMemoryCatalog loads the embedded seed, or the file at path when it is set.
func NewMemoryCatalog(path string) (*MemoryCatalog, error) {
	raw := defaultSeed
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read puzzle file: %w", err)
		}
		raw = b
	}
	list, err := ParseYAML(raw)
	if err != nil {
		return nil, err
	}
	return NewMemoryCatalogFrom(list), nil
}

func NewMemoryCatalogFrom(list []Puzzle) *MemoryCatalog {
	c := &MemoryCatalog{byID: make(map[int]Puzzle, len(list))}
	for _, p := range list {
		c.byID[p.ID] = p
	}
	return c
}

// ParseYAML decodes a `puzzles:` document and normalises enum spellings.
func ParseYAML(raw []byte) ([]Puzzle, error) {
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse puzzle yaml: %w", err)
	}
	seen := make(map[int]struct{}, len(f.Puzzles))
	out := make([]Puzzle, 0, len(f.Puzzles))
	for _, p := range f.Puzzles {
		if p.ID <= 0 {
			return nil, fmt.Errorf("puzzle %q: id must be positive", p.Name)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate puzzle id %d", p.ID)
		}
		seen[p.ID] = struct{}{}
		p.Type = ParseType(string(p.Type))
		p.Difficulty = ParseDifficulty(string(p.Difficulty))
		out = append(out, p)
	}
	return out, nil
}

func (c *MemoryCatalog) ByType(_ context.Context, t Type) ([]Puzzle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Puzzle, 0)
	for _, p := range c.byID {
		if p.Type == t {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *MemoryCatalog) Get(_ context.Context, id int) (Puzzle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	if !ok {
		return Puzzle{}, ErrNotFound
	}
	return p, nil
}
