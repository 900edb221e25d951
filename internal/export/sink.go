package export

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/commuter-cli/internal/graph"
)

// Sink persists a finished graph.
type Sink interface {
	Name() string
	Write(ctx context.Context, g *graph.CommuterGraph) error
}

// WriteAll writes g to every sink in order and stops at the first failure.
func WriteAll(ctx context.Context, g *graph.CommuterGraph, sinks ...Sink) error {
	for _, s := range sinks {
		if err := s.Write(ctx, g); err != nil {
			return eris.Wrapf(err, "export: sink %s", s.Name())
		}
	}
	return nil
}
