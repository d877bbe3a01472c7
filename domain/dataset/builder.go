package dataset

import (
	"fmt"
	"log/slog"

	"github.com/emergent-company/ageload/pkg/logger"
)

// maxAttemptsFactor bounds sampling at this many draws per target edge.
const maxAttemptsFactor = 10

// NodeCount asks the builder for Count nodes of Label.
type NodeCount struct {
	Label string `yaml:"label"`
	Count int    `yaml:"count"`
}

// Shortfall records an edge type that hit the attempt cap before reaching its
// target.
type Shortfall struct {
	Label    string
	Target   int
	Produced int
	Attempts int
}

// Report summarizes one Build call.
type Report struct {
	Nodes      []LabelCount
	Edges      []LabelCount
	Skipped    []string
	Shortfalls []Shortfall
}

// Builder turns node counts and a density into a Dataset.
type Builder struct {
	log       *slog.Logger
	src       *Source
	nodeTypes map[string]NodeGenerator
}

// NewBuilder creates a builder using the default node generators.
func NewBuilder(log *slog.Logger, src *Source) *Builder {
	return &Builder{
		log:       log.With(logger.Scope("dataset")),
		src:       src,
		nodeTypes: DefaultNodeTypes(),
	}
}

// RegisterNodeType adds or replaces the generator for label.
func (b *Builder) RegisterNodeType(label string, gen NodeGenerator) {
	b.nodeTypes[label] = gen
}

// BuildNodes creates nodes in the order of counts. IDs start at 1 and run
// sequentially across labels.
func (b *Builder) BuildNodes(counts []NodeCount) ([]Node, error) {
	total := 0
	for _, c := range counts {
		if _, ok := b.nodeTypes[c.Label]; !ok {
			return nil, fmt.Errorf("no property generator for label %q", c.Label)
		}
		if c.Count < 0 {
			return nil, fmt.Errorf("negative node count %d for label %q", c.Count, c.Label)
		}
		total += c.Count
	}

	nodes := make([]Node, 0, total)
	var id int64 = 1
	for _, c := range counts {
		gen := b.nodeTypes[c.Label]
		for i := 0; i < c.Count; i++ {
			nodes = append(nodes, Node{
				ID:         id,
				Label:      c.Label,
				Properties: gen(b.src, i),
			})
			id++
		}
	}
	return nodes, nil
}

// BuildEdges samples endpoints uniformly with replacement for every edge
// type. Each type aims at floor(|from|*|to|*density) distinct
// (from, to, label) triples and stops after ten draws per target edge. Types
// with an empty endpoint pool are skipped with a warning, and types that stop
// short are returned as shortfalls rather than errors.
func (b *Builder) BuildEdges(nodes []Node, types []EdgeType, density float64) ([]Edge, []Shortfall, []string, error) {
	if !(density >= 0 && density <= 1) {
		return nil, nil, nil, fmt.Errorf("density must be within [0, 1], got %v", density)
	}

	pools := make(map[string][]int64)
	for _, n := range nodes {
		pools[n.Label] = append(pools[n.Label], n.ID)
	}

	type triple struct {
		from, to int64
		label    string
	}

	var (
		edges      []Edge
		shortfalls []Shortfall
		skipped    []string
		id         int64 = 1
	)
	for _, et := range types {
		from, to := pools[et.From], pools[et.To]
		if len(from) == 0 || len(to) == 0 {
			b.log.Warn("no nodes found for edge type, skipping",
				slog.String("edge_label", et.Label),
				slog.String("from", et.From),
				slog.String("to", et.To),
			)
			skipped = append(skipped, et.Label)
			continue
		}

		target := int(float64(len(from)) * float64(len(to)) * density)
		maxAttempts := target * maxAttemptsFactor
		seen := make(map[triple]struct{}, target)
		produced, attempts := 0, 0

		for produced < target && attempts < maxAttempts {
			attempts++
			key := triple{
				from:  from[b.src.Rand.IntN(len(from))],
				to:    to[b.src.Rand.IntN(len(to))],
				label: et.Label,
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			var props map[string]any
			if et.Generate != nil {
				props = et.Generate(b.src)
			}
			edges = append(edges, Edge{
				ID:         id,
				Label:      et.Label,
				FromID:     key.from,
				ToID:       key.to,
				FromLabel:  et.From,
				ToLabel:    et.To,
				Properties: props,
			})
			id++
			produced++
		}

		if produced < target {
			b.log.Warn("edge type stopped short of its target",
				slog.String("edge_label", et.Label),
				slog.Int("target", target),
				slog.Int("produced", produced),
				slog.Int("attempts", attempts),
			)
			shortfalls = append(shortfalls, Shortfall{
				Label:    et.Label,
				Target:   target,
				Produced: produced,
				Attempts: attempts,
			})
		}
	}
	return edges, shortfalls, skipped, nil
}

// Build generates a full dataset for p.
func (b *Builder) Build(p Profile) (Dataset, Report, error) {
	if err := p.Validate(); err != nil {
		return Dataset{}, Report{}, err
	}

	nodes, err := b.BuildNodes(p.Nodes)
	if err != nil {
		return Dataset{}, Report{}, err
	}

	types, err := p.EdgeTypeDefs()
	if err != nil {
		return Dataset{}, Report{}, err
	}

	edges, shortfalls, skipped, err := b.BuildEdges(nodes, types, p.Density)
	if err != nil {
		return Dataset{}, Report{}, err
	}

	ds := Dataset{Nodes: nodes, Edges: edges}
	report := Report{
		Nodes:      ds.NodeCounts(),
		Edges:      ds.EdgeCounts(),
		Skipped:    skipped,
		Shortfalls: shortfalls,
	}
	b.log.Info("dataset generated",
		slog.Int("nodes", len(nodes)),
		slog.Int("edges", len(edges)),
		slog.Float64("density", p.Density),
	)
	return ds, report, nil
}
