package dataset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile describes what to generate. It can be loaded from YAML:
//
//	seed: 42
//	density: 0.05
//	nodes:
//	  - label: Person
//	    count: 100
//	edge_types: [WORKS_AT, KNOWS]
type Profile struct {
	Seed      uint64      `yaml:"seed"`
	Density   float64     `yaml:"density"`
	Nodes     []NodeCount `yaml:"nodes"`
	EdgeTypes []string    `yaml:"edge_types,omitempty"`
}

// DefaultProfile returns 100 persons, 20 companies, 50 products and 10
// locations at density 0.05 with all default edge types.
func DefaultProfile() Profile {
	return Profile{
		Seed:    1,
		Density: 0.05,
		Nodes: []NodeCount{
			{Label: "Person", Count: 100},
			{Label: "Company", Count: 20},
			{Label: "Product", Count: 50},
			{Label: "Location", Count: 10},
		},
	}
}

// LoadProfile reads a YAML profile. Fields missing from the file keep their
// DefaultProfile values.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Save writes the profile as YAML.
func (p Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// Validate checks density bounds, counts and edge type names.
func (p Profile) Validate() error {
	if !(p.Density >= 0 && p.Density <= 1) {
		return fmt.Errorf("density must be within [0, 1], got %v", p.Density)
	}
	seen := make(map[string]struct{}, len(p.Nodes))
	for _, n := range p.Nodes {
		if n.Count < 0 {
			return fmt.Errorf("negative node count %d for label %q", n.Count, n.Label)
		}
		if _, dup := seen[n.Label]; dup {
			return fmt.Errorf("label %q listed twice", n.Label)
		}
		seen[n.Label] = struct{}{}
	}
	_, err := p.EdgeTypeDefs()
	return err
}

// EdgeTypeDefs resolves EdgeTypes against DefaultEdgeTypes. An empty list
// selects every default edge type.
func (p Profile) EdgeTypeDefs() ([]EdgeType, error) {
	all := DefaultEdgeTypes()
	if len(p.EdgeTypes) == 0 {
		return all, nil
	}

	byLabel := make(map[string]EdgeType, len(all))
	for _, et := range all {
		byLabel[et.Label] = et
	}
	out := make([]EdgeType, 0, len(p.EdgeTypes))
	for _, name := range p.EdgeTypes {
		et, ok := byLabel[name]
		if !ok {
			return nil, fmt.Errorf("unknown edge type %q", name)
		}
		out = append(out, et)
	}
	return out, nil
}
