package loader

import (
	"fmt"
	"log/slog"

	"github.com/emergent-company/ageload/domain/dataset"
)

// maxLoggedSkips caps how many skipped edges are logged individually.
const maxLoggedSkips = 5

// skipLog logs the first few skipped edges and counts the rest.
type skipLog struct {
	log     *slog.Logger
	count   int
	reasons []string
}

func (s *skipLog) record(e dataset.Edge, reason string) {
	s.count++
	if s.count > maxLoggedSkips {
		return
	}
	msg := fmt.Sprintf("edge %d %s (%d -> %d): %s", e.ID, e.Label, e.FromID, e.ToID, reason)
	s.reasons = append(s.reasons, msg)
	s.log.Warn("edge skipped",
		slog.Int64("edge_id", e.ID),
		slog.String("edge_label", e.Label),
		slog.Int64("from_id", e.FromID),
		slog.Int64("to_id", e.ToID),
		slog.String("reason", reason),
	)
}

// flush logs the number of skips that were not logged individually.
func (s *skipLog) flush() {
	if s.count > maxLoggedSkips {
		s.log.Warn("further edges skipped",
			slog.Int("not_logged", s.count-maxLoggedSkips),
			slog.Int("total_skipped", s.count),
		)
	}
}
