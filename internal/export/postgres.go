package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/commuter-cli/internal/db"
	"github.com/sells-group/commuter-cli/internal/graph"
)

// Column lists of the commuter tables.
var (
	NodeTableColumns = []string{
		"granularity", "geoid", "padded", "state", "county", "town", "tract",
		"latitude", "longitude", "population", "age_bands", "geom",
	}
	EdgeTableColumns = []string{"granularity", "source", "target", "weight", "margin"}
)

// PostgresSink replaces the nodes and edges of one granularity in
// <schema>.nodes and <schema>.edges. Other granularities are left alone.
type PostgresSink struct {
	pool   db.Pool
	schema string
}

// NewPostgresSink creates a PostgresSink writing into schema.
func NewPostgresSink(pool db.Pool, schema string) *PostgresSink {
	if schema == "" {
		schema = "commuter"
	}
	return &PostgresSink{pool: pool, schema: schema}
}

// Name implements Sink.
func (s *PostgresSink) Name() string { return "postgres" }

// Migrate creates the schema and tables if they do not exist.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	return eris.Wrap(db.ExecAll(ctx, s.pool, s.ddl()), "export: migrate postgres")
}

func (s *PostgresSink) ddl() []string {
	schema := pgx.Identifier{s.schema}.Sanitize()
	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.nodes (
	granularity TEXT NOT NULL,
	geoid       TEXT NOT NULL,
	padded      BOOLEAN NOT NULL DEFAULT false,
	state       TEXT,
	county      TEXT,
	town        TEXT,
	tract       TEXT,
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	population  BIGINT,
	age_bands   JSONB,
	geom        geometry(Point, 4326),
	PRIMARY KEY (granularity, geoid)
)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.edges (
	granularity TEXT NOT NULL,
	source      TEXT NOT NULL,
	target      TEXT NOT NULL,
	weight      BIGINT NOT NULL,
	margin      BIGINT,
	PRIMARY KEY (granularity, source, target)
)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_nodes_geom ON %s.nodes USING GIST (geom)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_edges_target ON %s.edges (granularity, target)`, schema),
	}
}

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, g *graph.CommuterGraph) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}

	nodes, err := NodeRows(g)
	if err != nil {
		return err
	}
	gran := g.Granularity().String()
	counts, err := db.Replace(ctx, s.pool, []db.Partition{
		{Schema: s.schema, Table: "nodes", Key: "granularity", Value: gran, Columns: NodeTableColumns, Rows: nodes},
		{Schema: s.schema, Table: "edges", Key: "granularity", Value: gran, Columns: EdgeTableColumns, Rows: EdgeRows(g)},
	})
	if err != nil {
		return eris.Wrap(err, "export: write postgres")
	}

	zap.L().Info("graph written to postgres",
		zap.String("component", "export.postgres"),
		zap.String("schema", s.schema),
		zap.String("granularity", gran),
		zap.Int64("nodes", counts[0]),
		zap.Int64("edges", counts[1]),
	)
	return nil
}

// NodeRows returns the COPY rows for the nodes of g in NodeTableColumns order.
// geoid is the key string, so a padded key never collides with a zero code.
// Nodes without both coordinates get a NULL geometry.
func NodeRows(g *graph.CommuterGraph) ([][]any, error) {
	gran := g.Granularity().String()
	nodes := g.Nodes()
	rows := make([][]any, 0, len(nodes))
	for _, n := range nodes {
		a := n.Attrs

		var bands any
		if len(a.AgeBands) > 0 {
			b, err := json.Marshal(a.AgeBands)
			if err != nil {
				return nil, eris.Wrapf(err, "export: encode age bands of %s", n.Key)
			}
			bands = b
		}

		var point any
		if a.Latitude != nil && a.Longitude != nil {
			p, err := EncodePoint(*a.Longitude, *a.Latitude)
			if err != nil {
				return nil, eris.Wrapf(err, "export: encode point of %s", n.Key)
			}
			point = p
		}

		rows = append(rows, []any{
			gran, n.Key.String(), n.Key.Padded(),
			a.State, a.County, a.Subdivision, a.Tract,
			a.Latitude, a.Longitude, a.Population,
			bands, point,
		})
	}
	return rows, nil
}

// EdgeRows returns the COPY rows for the edges of g in EdgeTableColumns order.
func EdgeRows(g *graph.CommuterGraph) [][]any {
	gran := g.Granularity().String()
	edges := g.Edges()
	rows := make([][]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, []any{gran, e.Source.String(), e.Target.String(), e.Weight, e.Margin})
	}
	return rows
}

// EncodePoint returns the little-endian EWKB of a WGS84 point.
func EncodePoint(lon, lat float64) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "export: encode EWKB")
	}
	return data, nil
}
