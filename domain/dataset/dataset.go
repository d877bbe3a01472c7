// Package dataset generates synthetic property graphs and moves them between
// memory and the nodes.csv / edges.csv file pair.
package dataset

import (
	"fmt"

	"github.com/emergent-company/ageload/pkg/apperror"
	"github.com/emergent-company/ageload/pkg/cypher"
)

// Node is a vertex to load. IDs are unique across all labels.
type Node struct {
	ID         int64
	Label      string
	Properties map[string]any
}

// Edge is a relationship between two nodes, referenced by their dataset ids.
// FromLabel and ToLabel are optional.
type Edge struct {
	ID         int64
	Label      string
	FromID     int64
	ToID       int64
	FromLabel  string
	ToLabel    string
	Properties map[string]any
}

// Dataset is an immutable batch of nodes and edges.
type Dataset struct {
	Nodes []Node
	Edges []Edge
}

// LabelCount is the number of records carrying one label.
type LabelCount struct {
	Label string
	Count int
}

// NodeCounts returns the node count per label in first-seen order.
func (d Dataset) NodeCounts() []LabelCount {
	labels := make([]string, len(d.Nodes))
	for i, n := range d.Nodes {
		labels[i] = n.Label
	}
	return countLabels(labels)
}

// EdgeCounts returns the edge count per label in first-seen order.
func (d Dataset) EdgeCounts() []LabelCount {
	labels := make([]string, len(d.Edges))
	for i, e := range d.Edges {
		labels[i] = e.Label
	}
	return countLabels(labels)
}

func countLabels(labels []string) []LabelCount {
	index := make(map[string]int)
	var out []LabelCount
	for _, l := range labels {
		i, ok := index[l]
		if !ok {
			i = len(out)
			index[l] = i
			out = append(out, LabelCount{Label: l})
		}
		out[i].Count++
	}
	return out
}

// Validate checks the structural rules loaders rely on: positive unique node
// ids, identifier-safe labels and keys, scalar property values. Edge
// endpoints are not checked here; loaders skip edges whose endpoints are
// missing.
func (d Dataset) Validate() error {
	seen := make(map[int64]struct{}, len(d.Nodes))
	for i, n := range d.Nodes {
		if n.ID < 1 {
			return invalid("node %d: id must be positive, got %d", i, n.ID)
		}
		if _, dup := seen[n.ID]; dup {
			return invalid("node %d: duplicate id %d", i, n.ID)
		}
		seen[n.ID] = struct{}{}
		if err := cypher.ValidateIdentifier(n.Label); err != nil {
			return invalid("node %d: %v", n.ID, err)
		}
		if err := validateProperties(n.Properties); err != nil {
			return invalid("node %d: %v", n.ID, err)
		}
	}
	for _, e := range d.Edges {
		if err := cypher.ValidateIdentifier(e.Label); err != nil {
			return invalid("edge %d: %v", e.ID, err)
		}
		if err := validateProperties(e.Properties); err != nil {
			return invalid("edge %d: %v", e.ID, err)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return apperror.ErrInvalidDataset.WithMessage(fmt.Sprintf(format, args...))
}

func validateProperties(props map[string]any) error {
	for k, v := range props {
		if err := cypher.ValidateIdentifier(k); err != nil {
			return err
		}
		if _, err := NormalizeValue(v); err != nil {
			return fmt.Errorf("property %q: %w", k, err)
		}
	}
	return nil
}

// NormalizeValue maps any Go scalar onto the four property kinds: string,
// bool, int64 and float64.
func NormalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case string, bool, int64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("%w: %T", cypher.ErrUnsupportedValue, v)
	}
}
