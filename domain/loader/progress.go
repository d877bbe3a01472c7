package loader

import (
	"fmt"
	"log/slog"
	"time"
)

// Progress is a snapshot taken after a commit.
type Progress struct {
	Kind     Kind
	Strategy string
	Label    string
	Chunk    int
	Total    int
	Loaded   int
	Skipped  int
	Elapsed  time.Duration
}

// Done returns how many items have been processed, loaded or skipped.
func (p Progress) Done() int {
	return p.Loaded + p.Skipped
}

// Percent returns the processed share of Total in [0, 100].
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Done()) / float64(p.Total) * 100
}

// Rate returns loaded items per second. Skipped items do not count.
func (p Progress) Rate() float64 {
	return perSecond(p.Loaded, p.Elapsed)
}

// ETA estimates the time left from the processed rate, since skipped items
// also move the load forward. ok is false while nothing has been processed.
func (p Progress) ETA() (eta time.Duration, ok bool) {
	rate := perSecond(p.Done(), p.Elapsed)
	if rate <= 0 {
		return 0, false
	}
	remaining := p.Total - p.Done()
	if remaining <= 0 {
		return 0, true
	}
	return time.Duration(float64(remaining) / rate * float64(time.Second)), true
}

func (p Progress) String() string {
	eta := "n/a"
	if d, ok := p.ETA(); ok {
		eta = d.Round(100 * time.Millisecond).String()
	}
	return fmt.Sprintf("%d/%d (%.1f%%) | Rate: %.0f %s/s | ETA: %s",
		p.Done(), p.Total, p.Percent(), p.Rate(), p.Kind, eta)
}

func perSecond(n int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}

// Reporter receives progress updates.
type Reporter func(Progress)

// LogReporter logs every update at info level.
func LogReporter(log *slog.Logger) Reporter {
	return func(p Progress) {
		attrs := []any{
			slog.String("kind", string(p.Kind)),
			slog.String("strategy", p.Strategy),
			slog.String("label", p.Label),
			slog.Int("chunk", p.Chunk),
			slog.Int("loaded", p.Loaded),
			slog.Int("skipped", p.Skipped),
			slog.Int("total", p.Total),
			slog.String("rate", fmt.Sprintf("%.0f/s", p.Rate())),
		}
		if eta, ok := p.ETA(); ok {
			attrs = append(attrs, slog.Duration("eta", eta.Round(time.Second)))
		}
		log.Info("load progress", attrs...)
	}
}

// tracker accumulates counts for one load call and emits progress.
type tracker struct {
	kind     Kind
	strategy string
	total    int
	loaded   int
	skipped  int
	chunk    int
	start    time.Time
	report   Reporter
	metrics  *Metrics
	reasons  []string
}

func newTracker(kind Kind, strategy string, total int, report Reporter, metrics *Metrics) *tracker {
	return &tracker{
		kind:     kind,
		strategy: strategy,
		total:    total,
		start:    time.Now(),
		report:   report,
		metrics:  metrics,
	}
}

// next starts the next chunk and returns its 1-based index.
func (t *tracker) next() (int, time.Time) {
	t.chunk++
	return t.chunk, time.Now()
}

// commit records a committed chunk and reports progress.
func (t *tracker) commit(label string, loaded, skipped int, started time.Time) {
	t.loaded += loaded
	t.skipped += skipped
	t.metrics.observe(t.kind, t.strategy, loaded, skipped, time.Since(started))

	if t.report != nil {
		t.report(Progress{
			Kind:     t.kind,
			Strategy: t.strategy,
			Label:    label,
			Chunk:    t.chunk,
			Total:    t.total,
			Loaded:   t.loaded,
			Skipped:  t.skipped,
			Elapsed:  time.Since(t.start),
		})
	}
}

func (t *tracker) summary() Summary {
	return Summary{
		Kind:        t.kind,
		Strategy:    t.strategy,
		Total:       t.total,
		Loaded:      t.loaded,
		Skipped:     t.skipped,
		Chunks:      t.chunk,
		Elapsed:     time.Since(t.start),
		SkipReasons: t.reasons,
	}
}
