package vector

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/DavideDeMarchi/geolayer/internal/crs"
)

// identifyPixelRadius is the hit tolerance for point and line features,
// in screen pixels at the query zoom.
const identifyPixelRadius = 5.0

// toleranceDegrees converts the pixel radius into degrees of longitude at
// the given zoom and latitude.
func toleranceDegrees(zoom int, lat float64) float64 {
	worldPx := float64(uint64(crs.TileSize) << uint(zoom))
	deg := identifyPixelRadius * 360.0 / worldPx
	// latitude shrink of the mercator x axis
	if c := math.Cos(lat * math.Pi / 180); c > 0.01 {
		deg /= c
	}
	return deg
}

// Identify returns the topmost feature at a WGS84 point, or false when
// nothing is there. Topmost means last in dataset order, matching draw
// order. Polygon features hit by containment, points and lines within a
// zoom-dependent pixel tolerance.
func (ds *Dataset) Identify(lon, lat float64, zoom int) (*Feature, bool) {
	pt := orb.Point{lon, lat}
	tol := toleranceDegrees(zoom, lat)

	cand := ds.index.candidates(ds, lon, lat)
	for i := len(cand) - 1; i >= 0; i-- {
		f := &ds.Features[cand[i]]
		if hitTest(f.Geom, pt, tol) {
			return f, true
		}
	}
	return nil, false
}

func hitTest(g orb.Geometry, pt orb.Point, tol float64) bool {
	if !g.Bound().Pad(tol).Contains(pt) {
		return false
	}
	switch v := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(v, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(v, pt)
	case orb.Ring:
		return planar.RingContains(v, pt)
	case orb.Collection:
		for _, child := range v {
			if hitTest(child, pt, tol) {
				return true
			}
		}
		return false
	default:
		return planar.DistanceFrom(g, pt) <= tol
	}
}
