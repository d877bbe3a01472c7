package loader

import (
	"context"

	"github.com/emergent-company/ageload/domain/dataset"
)

// Batched folds each chunk into a single multi-clause Cypher statement.
// Edge chunks that do not fully apply are replayed record by record.
type Batched struct {
	base
}

func NewBatched(opts Options) *Batched {
	return &Batched{base: newBase("batched", opts)}
}

func (b *Batched) LoadNodes(ctx context.Context, nodes []dataset.Node, graph string, batchSize int) (Summary, error) {
	return b.loadNodesWith(ctx, nodes, graph, batchSize, writeNodesBatch)
}

func (b *Batched) LoadEdges(ctx context.Context, edges []dataset.Edge, graph string, batchSize int) (Summary, error) {
	return b.loadEdgesWith(ctx, edges, graph, batchSize, writeEdgesBatch(b.log))
}
