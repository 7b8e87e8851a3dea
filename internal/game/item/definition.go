// Package item defines the purchasable in-race items and turns a purchase
// into effect records on a race.
package item

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/derby/internal/game/race"
)

// Def is the static definition of an item, loaded from YAML.
type Def struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Effect      race.EffectType `yaml:"effect"`
	Cost        int64           `yaml:"cost"`
	DurationMs  int64           `yaml:"duration_ms"`
	// Factor is the speed multiplier for speed_multiply items.
	Factor float64 `yaml:"factor"`
	// OncePerCaller limits each caller to one use per race.
	OncePerCaller bool `yaml:"once_per_caller"`
	// LuaGate is an optional script defining allow(race).
	LuaGate string `yaml:"lua_gate"`
}

// Targeted reports whether the item acts on a caller-chosen entity.
func (d *Def) Targeted() bool {
	return d.Effect != race.Shuffle
}

// Validate checks the definition's invariants.
//
// Postcondition: Returns nil or an error describing every violation.
func (d *Def) Validate() error {
	var errs []string
	if d.ID == "" {
		errs = append(errs, "id must not be empty")
	}
	if !d.Effect.Valid() {
		errs = append(errs, fmt.Sprintf("effect %q is not a known effect", d.Effect))
	}
	if d.Cost <= 0 {
		errs = append(errs, fmt.Sprintf("cost must be > 0, got %d", d.Cost))
	}
	switch d.Effect {
	case race.SpeedMultiply:
		if d.Factor <= 0 {
			errs = append(errs, fmt.Sprintf("factor must be > 0 for %s, got %v", d.Effect, d.Factor))
		}
		fallthrough
	case race.Stop, race.Reverse:
		if d.DurationMs <= 0 {
			errs = append(errs, fmt.Sprintf("duration_ms must be > 0 for %s, got %d", d.Effect, d.DurationMs))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("item %q: %s", d.ID, strings.Join(errs, "; "))
	}
	return nil
}

// Registry holds all known item Defs keyed by ID.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Def
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Def)}
}

// Register adds def to the registry, overwriting any existing entry with the same ID.
//
// Precondition: def must not be nil.
// Postcondition: returns def.Validate() and leaves the registry unchanged on error.
func (r *Registry) Register(def *Def) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.ID] = def
	return nil
}

// Get returns the Def for id, or (nil, false) if not found.
func (r *Registry) Get(id string) (*Def, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[id]
	return d, ok
}

// All returns every Def sorted by ID.
func (r *Registry) All() []*Def {
	r.mu.RLock()
	out := make([]*Def, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Defaults returns the built-in catalog.
func Defaults() *Registry {
	reg := NewRegistry()
	for _, d := range []*Def{
		{ID: "boost_down", Name: "Slow Down", Effect: race.SpeedMultiply, Factor: 0.5, DurationMs: 3000, Cost: 8000},
		{ID: "stop", Name: "Stop", Effect: race.Stop, DurationMs: 1500, Cost: 15000},
		{ID: "reverse", Name: "Reverse", Effect: race.Reverse, DurationMs: 1500, Cost: 15000},
		{ID: "reroll", Name: "Change Graph", Effect: race.Reroll, Cost: 20000},
		{ID: "shuffle", Name: "Shuffle", Effect: race.Shuffle, Cost: 30000, OncePerCaller: true},
	} {
		if err := reg.Register(d); err != nil {
			panic(err)
		}
	}
	return reg
}

// LoadDirectory reads every *.yaml file in dir, parses each as a Def, and
// returns a populated Registry.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Registry, or an error if any file fails to parse or validate.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading item dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var def Def
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := reg.Register(&def); err != nil {
			return nil, fmt.Errorf("registering %q: %w", path, err)
		}
	}
	if len(reg.defs) == 0 {
		return nil, fmt.Errorf("item dir %q contains no items", dir)
	}
	return reg, nil
}
