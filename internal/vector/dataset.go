// Package vector holds feature datasets and renders them to web map tiles
// through rule-driven symbology.
package vector

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

// GeomKind is the dominant geometry family of a dataset.
type GeomKind int

const (
	KindPoint GeomKind = iota
	KindLine
	KindPolygon
)

func (k GeomKind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	default:
		return "polygon"
	}
}

// Feature is one record: a WGS84 geometry plus its attributes.
type Feature struct {
	ID    int
	Geom  orb.Geometry
	Attrs map[string]any
}

// Dataset is an immutable in-memory feature collection. Geometries are
// stored in WGS84 lon/lat regardless of the source CRS.
type Dataset struct {
	Features []Feature
	Kind     GeomKind
	bound    orb.Bound
	index    *cellIndex
}

func kindOf(g orb.Geometry) GeomKind {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return KindPoint
	case orb.LineString, orb.MultiLineString:
		return KindLine
	default:
		return KindPolygon
	}
}

// newDataset finalizes a feature slice: assigns IDs, computes the combined
// bound and builds the spatial shortlist index.
func newDataset(features []Feature) (*Dataset, error) {
	if len(features) == 0 {
		return nil, geoerr.Config("dataset has no features")
	}
	ds := &Dataset{Features: features, Kind: kindOf(features[0].Geom)}
	ds.bound = features[0].Geom.Bound()
	for i := range ds.Features {
		ds.Features[i].ID = i
		ds.bound = ds.bound.Union(ds.Features[i].Geom.Bound())
	}
	ds.index = buildCellIndex(ds)
	return ds, nil
}

// FromWKT builds a dataset from well-known-text geometries with parallel
// attribute maps. attrs may be nil or shorter than geoms; missing entries
// get empty attribute maps.
func FromWKT(geoms []string, attrs []map[string]any) (*Dataset, error) {
	if len(geoms) == 0 {
		return nil, geoerr.Config("no geometries given")
	}
	features := make([]Feature, 0, len(geoms))
	for i, s := range geoms {
		g, err := wkt.Unmarshal(s)
		if err != nil {
			return nil, &geoerr.ConfigError{What: fmt.Sprintf("geometry %d: bad wkt", i), Err: err}
		}
		a := map[string]any{}
		if i < len(attrs) && attrs[i] != nil {
			a = attrs[i]
		}
		features = append(features, Feature{Geom: g, Attrs: a})
	}
	return newDataset(features)
}

// Bound returns the WGS84 extent of all features.
func (ds *Dataset) Bound() orb.Bound { return ds.bound }

// Fields lists the attribute names seen across the dataset.
func (ds *Dataset) Fields() []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range ds.Features {
		for name := range f.Attrs {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

// Values collects the attribute values of one field across all features.
// Features missing the field are skipped.
func (ds *Dataset) Values(field string) []any {
	var out []any
	for _, f := range ds.Features {
		if v, ok := f.Attrs[field]; ok {
			out = append(out, v)
		}
	}
	return out
}

// NumericValues collects field values convertible to float64, for the
// statistical classifiers. Returns an error when the field exists nowhere.
func (ds *Dataset) NumericValues(field string) ([]float64, error) {
	var out []float64
	found := false
	for _, f := range ds.Features {
		v, ok := f.Attrs[field]
		if !ok {
			continue
		}
		found = true
		if n, ok := asFloat(v); ok && !math.IsNaN(n) {
			out = append(out, n)
		}
	}
	if !found {
		return nil, &geoerr.AttributeNotFoundError{Attribute: field}
	}
	return out, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
