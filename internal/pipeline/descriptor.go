package pipeline

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/commuter-cli/internal/attrs"
	"github.com/sells-group/commuter-cli/internal/geokey"
	"github.com/sells-group/commuter-cli/internal/scope"
)

//go:embed descriptors.yaml
var descriptorsYAML []byte

// Flow table kinds.
const (
	KindACSCommuting = "acs_commuting"
	KindLODESOD      = "lodes_od"
)

// Unit layouts.
const (
	UnitsNational = "national"
	UnitsState    = "state"
)

// NationalUnit names the single unit of a national build.
const NationalUnit = "us"

// FlowSpec describes the flow table of a descriptor.
type FlowSpec struct {
	Kind  string `yaml:"kind"`
	Level string `yaml:"level"` // granularity of the raw codes
	Units string `yaml:"units"`
}

// Reference names one reference table to merge onto nodes.
type Reference struct {
	Source  string `yaml:"source"`
	Level   string `yaml:"level"`
	PerUnit bool   `yaml:"per_unit"`
}

// Descriptor declares how a graph is built at one granularity.
type Descriptor struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Key         string      `yaml:"key"`
	Flows       FlowSpec    `yaml:"flows"`
	FlowNames   bool        `yaml:"flow_names"`
	References  []Reference `yaml:"references"`

	key       geokey.Granularity
	flowLevel geokey.Granularity
}

type descriptorFile struct {
	Granularities []Descriptor `yaml:"granularities"`
}

// Granularity returns the key granularity of the graph.
func (d Descriptor) Granularity() geokey.Granularity { return d.key }

// FlowLevel returns the granularity of the raw flow codes.
func (d Descriptor) FlowLevel() geokey.Granularity { return d.flowLevel }

// Rollup reports whether raw flow codes are truncated to the key granularity.
func (d Descriptor) Rollup() bool { return d.flowLevel != d.key }

// Units returns the load units for a scope: one national unit, or one
// lowercase state abbreviation per state in scope.
func (d Descriptor) Units(s scope.Scope) []string {
	if d.Flows.Units != UnitsState {
		return []string{NationalUnit}
	}
	fips := s.States()
	out := make([]string, 0, len(fips))
	for _, f := range fips {
		if st, ok := geokey.StateByFIPS(f); ok {
			out = append(out, strings.ToLower(st.Abbr))
		}
	}
	return out
}

// SourceOrder returns the attribute sources in application order.
func (d Descriptor) SourceOrder() []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range d.References {
		if !seen[r.Source] {
			seen[r.Source] = true
			out = append(out, r.Source)
		}
	}
	if d.FlowNames {
		out = append(out, attrs.SourceFlowNames)
	}
	return out
}

func (d *Descriptor) resolve() error {
	var err error
	if d.key, err = geokey.ParseGranularity(d.Key); err != nil {
		return eris.Wrapf(err, "descriptor %s: key", d.Name)
	}
	if d.flowLevel, err = geokey.ParseGranularity(d.Flows.Level); err != nil {
		return eris.Wrapf(err, "descriptor %s: flow level", d.Name)
	}
	if !geokey.CanRollup(d.flowLevel, d.key) {
		return eris.Errorf("descriptor %s: %s flows do not roll up to %s", d.Name, d.flowLevel, d.key)
	}
	switch d.Flows.Kind {
	case KindACSCommuting, KindLODESOD:
	default:
		return eris.Errorf("descriptor %s: unknown flow kind %q", d.Name, d.Flows.Kind)
	}
	switch d.Flows.Units {
	case UnitsNational, UnitsState:
	default:
		return eris.Errorf("descriptor %s: unknown units %q", d.Name, d.Flows.Units)
	}
	for _, r := range d.References {
		switch r.Source {
		case attrs.SourceGazetteer, attrs.SourcePopulation, attrs.SourceCrosswalk:
		default:
			return eris.Errorf("descriptor %s: unknown reference source %q", d.Name, r.Source)
		}
		if _, err := geokey.ParseGranularity(r.Level); err != nil {
			return eris.Wrapf(err, "descriptor %s: reference %s", d.Name, r.Source)
		}
	}
	return nil
}

// ParseDescriptors decodes and validates a descriptor document.
func ParseDescriptors(data []byte) ([]Descriptor, error) {
	var f descriptorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse descriptors")
	}
	seen := make(map[geokey.Granularity]string)
	for i := range f.Granularities {
		d := &f.Granularities[i]
		if err := d.resolve(); err != nil {
			return nil, eris.Wrap(err, "pipeline")
		}
		if prev, dup := seen[d.key]; dup {
			return nil, eris.Errorf("pipeline: descriptors %s and %s share granularity %s", prev, d.Name, d.key)
		}
		seen[d.key] = d.Name
	}
	return f.Granularities, nil
}

// Descriptors returns the built-in descriptors.
func Descriptors() []Descriptor {
	ds, err := ParseDescriptors(descriptorsYAML)
	if err != nil {
		panic(err) // embedded document is fixed at build time
	}
	return ds
}

// Lookup returns the built-in descriptor for g.
func Lookup(g geokey.Granularity) (Descriptor, error) {
	for _, d := range Descriptors() {
		if d.key == g {
			return d, nil
		}
	}
	return Descriptor{}, eris.Wrapf(geokey.ErrUnknownGranularity, "pipeline: no descriptor for %s", g)
}
