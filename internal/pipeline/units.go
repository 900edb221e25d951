package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Loader supplies the tables of a build.
type Loader interface {
	// Shared loads reference tables common to every unit.
	Shared(ctx context.Context, d Descriptor) ([]Table, error)
	// Unit loads the flows and per-unit reference tables of one unit.
	Unit(ctx context.Context, d Descriptor, name string) (Unit, error)
}

// BuildUnits loads every unit in scope with at most p.Concurrency loads in
// flight, then runs Build over the units in their declared order. Each unit
// loads into its own slot. A failed unit aborts the build with an error
// naming it.
func BuildUnits(ctx context.Context, d Descriptor, l Loader, p Params) (*Result, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("granularity", d.Name))
	start := time.Now()

	shared, err := l.Shared(ctx, d)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load shared tables")
	}

	names := d.Units(p.Scope)
	units := make([]Unit, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.Concurrency))
	for i, name := range names {
		g.Go(func() error {
			u, err := l.Unit(gctx, d, name)
			if err != nil {
				return eris.Wrapf(err, "pipeline: unit %s", name)
			}
			u.Name = name
			units[i] = u
			log.Debug("unit loaded", zap.String("unit", name), zap.Int("flows", len(u.Flows)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("units loaded",
		zap.Int("units", len(units)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return Build(d, shared, units, p)
}
