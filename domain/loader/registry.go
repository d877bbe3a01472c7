package loader

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/emergent-company/ageload/internal/config"
	"github.com/emergent-company/ageload/internal/database"
	"github.com/emergent-company/ageload/pkg/apperror"
)

var Module = fx.Module("loader",
	fx.Provide(
		func() prometheus.Registerer { return prometheus.DefaultRegisterer },
		NewMetrics,
		NewDefaultRegistry,
	),
)

// Registry looks strategies up by name.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry indexes the given strategies by Name.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Name()] = s
	}
	return r
}

// NewDefaultRegistry builds the four built-in strategies from configuration.
func NewDefaultRegistry(cfg *config.Config, store database.Store, log *slog.Logger, metrics *Metrics) *Registry {
	opts := Options{
		Store:    store,
		Log:      log,
		Metrics:  metrics,
		Progress: LogReporter(log),
	}
	return NewRegistry(
		NewDirect(opts),
		NewBatched(opts),
		NewStaged(opts),
		NewAgload(opts, AgloadConfig{
			Binary:    cfg.Loader.Binary,
			WorkDir:   cfg.Loader.WorkDir,
			KeepFiles: cfg.Loader.KeepFiles,
			Host:      cfg.Database.Host,
			Port:      cfg.Database.Port,
			User:      cfg.Database.User,
			Password:  cfg.Database.Password,
			Database:  cfg.Database.Database,
		}),
	)
}

// Get returns the strategy called name.
func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, apperror.ErrUnknownStrategy.WithMessage(
			fmt.Sprintf("unknown load strategy %q (available: %v)", name, r.Names()))
	}
	return s, nil
}

// Names returns the registered strategy names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
