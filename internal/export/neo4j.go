package export

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commuter-cli/internal/attrs"
	"github.com/sells-group/commuter-cli/internal/config"
	"github.com/sells-group/commuter-cli/internal/graph"
)

const defaultNeo4jBatch = 1000

const (
	placeConstraint = `CREATE CONSTRAINT place_key_unique IF NOT EXISTS FOR (p:Place) REQUIRE (p.granularity, p.key) IS UNIQUE`

	mergePlaces = `
UNWIND $nodes AS n
MERGE (p:Place {granularity: n.granularity, key: n.key})
SET p += n.props
`
	mergeCommutes = `
UNWIND $edges AS e
MATCH (a:Place {granularity: e.granularity, key: e.source})
MATCH (b:Place {granularity: e.granularity, key: e.target})
MERGE (a)-[r:COMMUTES_TO]->(b)
SET r.weight = e.weight, r.margin = e.margin
`
)

// Neo4jSink merges graph nodes as :Place and edges as :COMMUTES_TO.
type Neo4jSink struct {
	driver    neo4j.DriverWithContext
	database  string
	batchSize int
}

// NewNeo4jSink connects to the configured server and verifies connectivity.
func NewNeo4jSink(ctx context.Context, cfg config.Neo4jConfig) (*Neo4jSink, error) {
	if cfg.URI == "" {
		return nil, eris.New("export: neo4j.uri is required")
	}
	user := cfg.Username
	if user == "" {
		user = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(user, cfg.Password, ""), func(c *neo4j.Config) {
		c.SocketConnectTimeout = 10 * time.Second
	})
	if err != nil {
		return nil, eris.Wrap(err, "export: init neo4j driver")
	}

	vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, eris.Wrap(err, "export: verify neo4j connectivity")
	}
	return &Neo4jSink{driver: driver, database: cfg.Database, batchSize: cfg.BatchSize}, nil
}

// Name implements Sink.
func (s *Neo4jSink) Name() string { return "neo4j" }

// Close releases the driver.
func (s *Neo4jSink) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	err := s.driver.Close(ctx)
	s.driver = nil
	return eris.Wrap(err, "export: close neo4j driver")
}

// Write implements Sink. Nodes are merged before edges, each in batches
// committed as separate write transactions.
func (s *Neo4jSink) Write(ctx context.Context, g *graph.CommuterGraph) error {
	log := zap.L().With(zap.String("component", "export.neo4j"), zap.String("granularity", g.Granularity().String()))

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer func() { _ = session.Close(ctx) }()

	if res, err := session.Run(ctx, placeConstraint, nil); err != nil {
		log.Warn("neo4j constraint creation failed, continuing", zap.Error(err))
	} else if _, err := res.Consume(ctx); err != nil {
		log.Warn("neo4j constraint creation failed, continuing", zap.Error(err))
	}

	nodes := PlaceParams(g)
	edges := CommuteParams(g)
	for _, b := range Batches(len(nodes), s.batchSize) {
		if err := s.run(ctx, session, mergePlaces, "nodes", nodes[b[0]:b[1]]); err != nil {
			return eris.Wrapf(err, "export: merge places %d-%d", b[0], b[1])
		}
	}
	for _, b := range Batches(len(edges), s.batchSize) {
		if err := s.run(ctx, session, mergeCommutes, "edges", edges[b[0]:b[1]]); err != nil {
			return eris.Wrapf(err, "export: merge commutes %d-%d", b[0], b[1])
		}
	}

	log.Info("graph written to neo4j", zap.Int("nodes", len(nodes)), zap.Int("edges", len(edges)))
	return nil
}

func (s *Neo4jSink) run(ctx context.Context, session neo4j.SessionWithContext, cypher, param string, batch []map[string]any) error {
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{param: batch})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// PlaceParams returns one UNWIND row per node. Unset attributes are absent
// from props, so merging never clears a property with a null.
func PlaceParams(g *graph.CommuterGraph) []map[string]any {
	gran := g.Granularity().String()
	nodes := g.Nodes()
	out := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		props := map[string]any{FieldPadded: n.Key.Padded()}
		a := n.Attrs
		putProp(props, attrs.FieldState, a.State)
		putProp(props, attrs.FieldCounty, a.County)
		putProp(props, attrs.FieldSubdivision, a.Subdivision)
		putProp(props, attrs.FieldTract, a.Tract)
		putProp(props, attrs.FieldLatitude, a.Latitude)
		putProp(props, attrs.FieldLongitude, a.Longitude)
		putProp(props, attrs.FieldPopulation, a.Population)
		for _, band := range attrs.AgeBands {
			if v, ok := a.Band(band); ok {
				props[band] = v
			}
		}
		out = append(out, map[string]any{
			"granularity": gran,
			"key":         n.Key.String(),
			"props":       props,
		})
	}
	return out
}

// CommuteParams returns one UNWIND row per edge. An absent margin is nil.
func CommuteParams(g *graph.CommuterGraph) []map[string]any {
	gran := g.Granularity().String()
	edges := g.Edges()
	out := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		var margin any
		if e.Margin != nil {
			margin = *e.Margin
		}
		out = append(out, map[string]any{
			"granularity": gran,
			"source":      e.Source.String(),
			"target":      e.Target.String(),
			"weight":      e.Weight,
			"margin":      margin,
		})
	}
	return out
}

// Batches splits n items into [start, end) ranges of at most size items.
func Batches(n, size int) [][2]int {
	if size <= 0 {
		size = defaultNeo4jBatch
	}
	var out [][2]int
	for i := 0; i < n; i += size {
		out = append(out, [2]int{i, min(i+size, n)})
	}
	return out
}

func putProp[T any](props map[string]any, name string, v *T) {
	if v != nil {
		props[name] = *v
	}
}
