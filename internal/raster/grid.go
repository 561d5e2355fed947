// Package raster holds the in-memory grid model for single raster bands and
// renders them to web map tiles through a colorizer.
package raster

import (
	"math"

	"github.com/DavideDeMarchi/geolayer/internal/crs"
	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

// DataType is the pixel storage type of the source band, kept for identify
// formatting.
type DataType string

const (
	TypeUint8   DataType = "uint8"
	TypeInt16   DataType = "int16"
	TypeInt32   DataType = "int32"
	TypeFloat32 DataType = "float32"
	TypeFloat64 DataType = "float64"
)

// Grid is one band of a gridded dataset, row-major, immutable once built.
type Grid struct {
	Data      []float64
	Width     int
	Height    int
	Transform crs.GeoTransform
	NoData    float64
	DType     DataType
	Proj      crs.Projection
}

// NewGrid validates dimensions against the backing slice.
func NewGrid(data []float64, width, height int, tr crs.GeoTransform, nodata float64, proj crs.Projection) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, geoerr.Config("grid dimensions %dx%d invalid", width, height)
	}
	if len(data) != width*height {
		return nil, geoerr.Config("grid data length %d does not match %dx%d", len(data), width, height)
	}
	if proj == nil {
		proj = crs.WGS84{}
	}
	return &Grid{Data: data, Width: width, Height: height, Transform: tr, NoData: nodata, DType: TypeFloat64, Proj: proj}, nil
}

// At returns the raw value at a pixel address, false when out of bounds.
func (g *Grid) At(row, col int) (float64, bool) {
	if row < 0 || row >= g.Height || col < 0 || col >= g.Width {
		return 0, false
	}
	return g.Data[row*g.Width+col], true
}

// Sample does nearest-neighbor lookup at native-CRS coordinates; false when
// the point falls outside the extent.
func (g *Grid) Sample(x, y float64) (float64, bool) {
	row, col, err := g.Transform.Invert(x, y)
	if err != nil {
		return 0, false
	}
	return g.At(int(math.Floor(row)), int(math.Floor(col)))
}

// SampleLonLat projects a WGS84 point into the grid's CRS and samples it.
func (g *Grid) SampleLonLat(lon, lat float64) (float64, bool) {
	x, y := g.Proj.FromWGS84(lon, lat)
	return g.Sample(x, y)
}

// IsNoData reports whether v equals the configured nodata value.
func (g *Grid) IsNoData(v float64) bool {
	return v == g.NoData || math.IsNaN(v)
}

// Bounds returns the extent of the grid in its native CRS.
func (g *Grid) Bounds() (minX, minY, maxX, maxY float64) {
	corners := [4][2]float64{}
	corners[0][0], corners[0][1] = g.Transform.Apply(0, 0)
	corners[1][0], corners[1][1] = g.Transform.Apply(0, float64(g.Width))
	corners[2][0], corners[2][1] = g.Transform.Apply(float64(g.Height), 0)
	corners[3][0], corners[3][1] = g.Transform.Apply(float64(g.Height), float64(g.Width))
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		minX = math.Min(minX, c[0])
		minY = math.Min(minY, c[1])
		maxX = math.Max(maxX, c[0])
		maxY = math.Max(maxY, c[1])
	}
	return
}
