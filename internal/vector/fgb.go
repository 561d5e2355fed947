package vector

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"

	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

// FromFlatGeobuf loads all features of an indexed FlatGeobuf file.
func FromFlatGeobuf(path string) (*Dataset, error) {
	fgb, err := flatgeobuf.New(path)
	if err != nil {
		return nil, &geoerr.ConfigError{What: fmt.Sprintf("open %s", path), Err: err}
	}
	return fromFGB(fgb, path)
}

// FromFlatGeobufData loads features from an in-memory FlatGeobuf blob.
func FromFlatGeobufData(data []byte) (*Dataset, error) {
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, &geoerr.ConfigError{What: "flatgeobuf blob", Err: err}
	}
	return fromFGB(fgb, "flatgeobuf blob")
}

func fromFGB(fgb *flatgeobuf.FlatGeoBuf, name string) (*Dataset, error) {
	h := fgb.Header()
	if h == nil {
		return nil, geoerr.Config("%s: missing header", name)
	}
	if h.IndexNodeSize() == 0 || h.EnvelopeLength() < 4 {
		return nil, geoerr.Config("%s: file has no spatial index, cannot iterate", name)
	}
	raws, err := fgb.Search(h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	features := make([]Feature, 0, len(raws))
	for _, raw := range raws {
		var geomObj flattypes.Geometry
		geom := raw.Geometry(&geomObj)
		if geom == nil {
			continue
		}
		og := geomFromFGB(geom, h.GeometryType())
		if og == nil {
			continue
		}
		features = append(features, Feature{Geom: og, Attrs: propsFromFGB(raw, h)})
	}
	if len(features) == 0 {
		return nil, geoerr.Config("%s: no decodable features", name)
	}
	return newDataset(features)
}

func xyPoints(g *flattypes.Geometry, start, end int) []orb.Point {
	pts := make([]orb.Point, 0, end-start)
	for i := start; i < end; i++ {
		pts = append(pts, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return pts
}

// geomFromFGB decodes the subset of FlatGeobuf geometries the renderer
// supports. Feature-level geometry type falls back to the header's.
func geomFromFGB(g *flattypes.Geometry, headerType flattypes.GeometryType) orb.Geometry {
	gt := g.Type()
	if gt == flattypes.GeometryTypeUnknown {
		gt = headerType
	}
	n := g.XyLength() / 2
	switch gt {
	case flattypes.GeometryTypePoint:
		if n < 1 {
			return nil
		}
		return orb.Point{g.Xy(0), g.Xy(1)}
	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(xyPoints(g, 0, n))
	case flattypes.GeometryTypeLineString:
		return orb.LineString(xyPoints(g, 0, n))
	case flattypes.GeometryTypeMultiLineString:
		if g.EndsLength() == 0 {
			return orb.MultiLineString{orb.LineString(xyPoints(g, 0, n))}
		}
		var mls orb.MultiLineString
		start := 0
		for i := 0; i < g.EndsLength(); i++ {
			end := int(g.Ends(i))
			mls = append(mls, orb.LineString(xyPoints(g, start, end)))
			start = end
		}
		return mls
	case flattypes.GeometryTypePolygon:
		if g.EndsLength() == 0 {
			return orb.Polygon{orb.Ring(xyPoints(g, 0, n))}
		}
		var poly orb.Polygon
		start := 0
		for i := 0; i < g.EndsLength(); i++ {
			end := int(g.Ends(i))
			poly = append(poly, orb.Ring(xyPoints(g, start, end)))
			start = end
		}
		return poly
	case flattypes.GeometryTypeMultiPolygon:
		if g.PartsLength() == 0 {
			if p, ok := geomFromFGB(g, flattypes.GeometryTypePolygon).(orb.Polygon); ok {
				return orb.MultiPolygon{p}
			}
			return nil
		}
		var mp orb.MultiPolygon
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if !g.Parts(&part, i) {
				continue
			}
			if p, ok := geomFromFGB(&part, flattypes.GeometryTypePolygon).(orb.Polygon); ok {
				mp = append(mp, p)
			}
		}
		return mp
	}
	return nil
}

// propsFromFGB decodes the columnar property encoding: a little-endian
// uint16 column index followed by the typed value, repeated.
func propsFromFGB(f *flattypes.Feature, h *flattypes.Header) map[string]any {
	attrs := map[string]any{}
	propsLen := f.PropertiesLength()
	if propsLen == 0 || h.ColumnsLength() == 0 {
		return attrs
	}
	data := make([]byte, propsLen)
	for i := 0; i < propsLen; i++ {
		data[i] = byte(f.Properties(i))
	}
	off := 0
	for off+2 <= len(data) {
		ci := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		var col flattypes.Column
		if ci >= h.ColumnsLength() || !h.Columns(&col, ci) {
			break
		}
		v, n := readColumnValue(data[off:], col.Type())
		if n == 0 {
			break
		}
		off += n
		attrs[string(col.Name())] = v
	}
	return attrs
}

func readColumnValue(data []byte, ct flattypes.ColumnType) (any, int) {
	switch ct {
	case flattypes.ColumnTypeBool:
		if len(data) < 1 {
			return nil, 0
		}
		return data[0] != 0, 1
	case flattypes.ColumnTypeByte:
		if len(data) < 1 {
			return nil, 0
		}
		return int64(int8(data[0])), 1
	case flattypes.ColumnTypeUByte:
		if len(data) < 1 {
			return nil, 0
		}
		return int64(data[0]), 1
	case flattypes.ColumnTypeShort:
		if len(data) < 2 {
			return nil, 0
		}
		return int64(int16(binary.LittleEndian.Uint16(data))), 2
	case flattypes.ColumnTypeUShort:
		if len(data) < 2 {
			return nil, 0
		}
		return int64(binary.LittleEndian.Uint16(data)), 2
	case flattypes.ColumnTypeInt:
		if len(data) < 4 {
			return nil, 0
		}
		return int64(int32(binary.LittleEndian.Uint32(data))), 4
	case flattypes.ColumnTypeUInt:
		if len(data) < 4 {
			return nil, 0
		}
		return int64(binary.LittleEndian.Uint32(data)), 4
	case flattypes.ColumnTypeLong:
		if len(data) < 8 {
			return nil, 0
		}
		return int64(binary.LittleEndian.Uint64(data)), 8
	case flattypes.ColumnTypeULong:
		if len(data) < 8 {
			return nil, 0
		}
		return int64(binary.LittleEndian.Uint64(data)), 8
	case flattypes.ColumnTypeFloat:
		if len(data) < 4 {
			return nil, 0
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), 4
	case flattypes.ColumnTypeDouble:
		if len(data) < 8 {
			return nil, 0
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8
	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime, flattypes.ColumnTypeJson:
		i := bytes.IndexByte(data, 0)
		if i == -1 {
			return string(data), len(data)
		}
		return string(data[:i]), i + 1
	}
	return nil, 0
}
