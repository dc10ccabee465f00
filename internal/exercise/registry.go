package exercise

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"formcoach/internal/angles"
	"formcoach/internal/faults"
)

//go:embed default_rules.toml
var defaultRules []byte

type ruleFile struct {
	Exercises []Definition `toml:"exercise"`
}

// Registry resolves exercise identifiers to validated definitions. A
// definition that fails validation is quarantined: looking it up returns a
// rule config error while every other exercise stays usable.
type Registry struct {
	defs   map[string]Definition
	broken map[string]error
}

// LoadDefault builds a registry from the embedded rule tables.
func LoadDefault() (*Registry, error) {
	return load(defaultRules)
}

// LoadFile builds a registry from a TOML rules file. The file fully replaces
// the embedded defaults.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return load(data)
}

func load(data []byte) (*Registry, error) {
	var file ruleFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, faults.Wrap(faults.ErrRuleConfig, "exercise", "parse rules", err)
	}

	known := make(map[angles.TripletID]struct{})
	for _, triplet := range angles.StandardTriplets() {
		known[triplet.ID] = struct{}{}
	}

	registry := &Registry{
		defs:   make(map[string]Definition, len(file.Exercises)),
		broken: make(map[string]error),
	}
	for i := range file.Exercises {
		def := file.Exercises[i]
		if err := def.validate(known); err != nil {
			registry.broken[def.ID] = faults.Wrap(faults.ErrRuleConfig, "exercise", err.Error(), nil)
			continue
		}
		registry.defs[def.ID] = def
	}
	return registry, nil
}

// Get returns the definition for an exercise identifier.
func (r *Registry) Get(id string) (Definition, error) {
	if err, ok := r.broken[id]; ok {
		return Definition{}, err
	}
	def, ok := r.defs[id]
	if !ok {
		return Definition{}, fmt.Errorf("unknown exercise %q", id)
	}
	return def, nil
}

// IDs returns the sorted identifiers of all usable exercises.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.defs))
	for id := range r.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Broken returns the identifiers of exercises rejected during load, with the
// validation error for each. Callers report these instead of failing startup.
func (r *Registry) Broken() map[string]error {
	out := make(map[string]error, len(r.broken))
	for id, err := range r.broken {
		out[id] = err
	}
	return out
}
