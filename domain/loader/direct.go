package loader

import (
	"context"

	"github.com/emergent-company/ageload/domain/dataset"
)

// Direct writes one statement per record and commits every batchSize
// records. It is the slowest strategy and the easiest to debug.
type Direct struct {
	base
}

func NewDirect(opts Options) *Direct {
	return &Direct{base: newBase("direct", opts)}
}

func (d *Direct) LoadNodes(ctx context.Context, nodes []dataset.Node, graph string, batchSize int) (Summary, error) {
	return d.loadNodesWith(ctx, nodes, graph, batchSize, writeNodesEach)
}

func (d *Direct) LoadEdges(ctx context.Context, edges []dataset.Edge, graph string, batchSize int) (Summary, error) {
	return d.loadEdgesWith(ctx, edges, graph, batchSize, writeEdgesEach)
}
