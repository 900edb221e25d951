// Package export serializes commuter graphs to files and databases.
package export

import (
	"encoding/xml"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/commuter-cli/internal/attrs"
	"github.com/sells-group/commuter-cli/internal/graph"
)

const graphMLNamespace = "http://graphml.graphdrawing.org/xmlns"

// Field names of edges and of the padded-key flag.
const (
	FieldWeight = "weight"
	FieldMargin = "margin"
	FieldPadded = "padded"
)

// column describes one serialized attribute.
type column struct {
	name   string
	typ    string // GraphML attr.type
	domain string // node or edge
}

// nodeColumns lists node attributes in serialization order.
var nodeColumns = func() []column {
	cols := []column{
		{attrs.FieldState, "string", "node"},
		{attrs.FieldCounty, "string", "node"},
		{attrs.FieldSubdivision, "string", "node"},
		{attrs.FieldTract, "string", "node"},
		{attrs.FieldLatitude, "double", "node"},
		{attrs.FieldLongitude, "double", "node"},
		{attrs.FieldPopulation, "long", "node"},
	}
	for _, band := range attrs.AgeBands {
		cols = append(cols, column{band, "long", "node"})
	}
	return cols
}()

var edgeColumns = []column{
	{FieldWeight, "long", "edge"},
	{FieldMargin, "long", "edge"},
}

type graphMLDoc struct {
	XMLName xml.Name     `xml:"graphml"`
	Xmlns   string       `xml:"xmlns,attr"`
	Keys    []graphMLKey `xml:"key"`
	Graph   graphMLGraph `xml:"graph"`
}

type graphMLKey struct {
	ID   string `xml:"id,attr"`
	For  string `xml:"for,attr"`
	Name string `xml:"attr.name,attr"`
	Type string `xml:"attr.type,attr"`
}

type graphMLGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphMLNode `xml:"node"`
	Edges       []graphMLEdge `xml:"edge"`
}

type graphMLNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphMLData `xml:"data"`
}

type graphMLEdge struct {
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphMLData `xml:"data"`
}

type graphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// WriteGraphML writes g as GraphML. Keys are declared in a fixed order, nodes
// and edges follow the graph's own ordering, and unset attributes emit no
// data element, so equal graphs produce identical bytes.
func WriteGraphML(w io.Writer, g *graph.CommuterGraph) error {
	doc := graphMLDoc{
		Xmlns: graphMLNamespace,
		Graph: graphMLGraph{ID: g.Granularity().String(), EdgeDefault: "directed"},
	}

	ids := make(map[string]string)
	declare := func(c column) {
		id := "d" + strconv.Itoa(len(doc.Keys))
		ids[c.domain+"/"+c.name] = id
		doc.Keys = append(doc.Keys, graphMLKey{ID: id, For: c.domain, Name: c.name, Type: c.typ})
	}
	for _, c := range nodeColumns {
		declare(c)
	}
	declare(column{FieldPadded, "boolean", "node"})
	for _, c := range edgeColumns {
		declare(c)
	}

	for _, n := range g.Nodes() {
		vals := n.Attrs.Values()
		node := graphMLNode{ID: n.Key.String()}
		for _, c := range nodeColumns {
			if v, ok := vals[c.name]; ok {
				node.Data = append(node.Data, graphMLData{Key: ids["node/"+c.name], Value: v})
			}
		}
		if n.Key.Padded() {
			node.Data = append(node.Data, graphMLData{Key: ids["node/"+FieldPadded], Value: "true"})
		}
		doc.Graph.Nodes = append(doc.Graph.Nodes, node)
	}

	for _, e := range g.Edges() {
		edge := graphMLEdge{
			Source: e.Source.String(),
			Target: e.Target.String(),
			Data:   []graphMLData{{Key: ids["edge/"+FieldWeight], Value: strconv.FormatInt(e.Weight, 10)}},
		}
		if e.Margin != nil {
			edge.Data = append(edge.Data, graphMLData{Key: ids["edge/"+FieldMargin], Value: strconv.FormatInt(*e.Margin, 10)})
		}
		doc.Graph.Edges = append(doc.Graph.Edges, edge)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return eris.Wrap(err, "export: write graphml header")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "export: encode graphml")
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return eris.Wrap(err, "export: write graphml")
	}
	return nil
}
