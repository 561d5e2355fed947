package vector

import (
	"image"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"

	"github.com/DavideDeMarchi/geolayer/internal/canvas"
	"github.com/DavideDeMarchi/geolayer/internal/crs"
	"github.com/DavideDeMarchi/geolayer/internal/rules"
	"github.com/DavideDeMarchi/geolayer/internal/symbols"
)

// StyleRule pairs a filter with the draw parameters of every style slot of
// its symbol. Features take the first rule whose filter matches.
type StyleRule struct {
	Filter rules.Expr
	Styles []symbols.DrawParams
}

// ScaleDenominator is the standard WebMercator scale denominator at a zoom
// level, used against the scale-min/scale-max bounds of a style.
func ScaleDenominator(zoom int) float64 {
	return 559082264.0287178 / math.Exp2(float64(zoom))
}

func styleVisible(dp symbols.DrawParams, denom float64) bool {
	if dp.ScaleMin > 0 && denom < dp.ScaleMin {
		return false
	}
	if dp.ScaleMax > 0 && denom > dp.ScaleMax {
		return false
	}
	return true
}

// tileSpace maps WGS84 coordinates into pixel coordinates local to one tile.
type tileSpace struct {
	zoom           int
	baseX, baseY   float64
	simplification float64
}

func newTileSpace(z, x, y int) tileSpace {
	return tileSpace{
		zoom:           z,
		baseX:          float64(x * crs.TileSize),
		baseY:          float64(y * crs.TileSize),
		simplification: 0.5,
	}
}

func (ts tileSpace) point(p orb.Point) canvas.Point {
	px, py := crs.LonLatToPixel(p[0], p[1], ts.zoom)
	return canvas.Point{X: px - ts.baseX, Y: py - ts.baseY}
}

func (ts tileSpace) line(ls orb.LineString) []canvas.Point {
	out := make([]canvas.Point, 0, len(ls))
	for _, p := range ls {
		out = append(out, ts.point(p))
	}
	return simplifyPixels(out, ts.simplification, false)
}

func (ts tileSpace) ring(r orb.Ring) []canvas.Point {
	out := make([]canvas.Point, 0, len(r))
	for _, p := range r {
		out = append(out, ts.point(p))
	}
	return simplifyPixels(out, ts.simplification, true)
}

// simplifyPixels runs Douglas-Peucker in pixel space so the tolerance is
// zoom-independent.
func simplifyPixels(pts []canvas.Point, tol float64, closed bool) []canvas.Point {
	if tol <= 0 || len(pts) < 3 {
		return pts
	}
	ls := make(orb.LineString, 0, len(pts))
	for _, p := range pts {
		ls = append(ls, orb.Point{p.X, p.Y})
	}
	ls = simplify.DouglasPeucker(tol).LineString(ls)
	minPts := 2
	if closed {
		minPts = 3
	}
	if len(ls) < minPts {
		return pts
	}
	out := make([]canvas.Point, 0, len(ls))
	for _, p := range ls {
		out = append(out, canvas.Point{X: p[0], Y: p[1]})
	}
	return out
}

// tileBuffer pads the tile bound so strokes and markers near the edge are
// not clipped at the seam.
const tileBuffer = 0.1

func tileBound(z, x, y int) orb.Bound {
	minLon, minLat, maxLon, maxLat := crs.TileBounds(z, x, y)
	padLon := (maxLon - minLon) * tileBuffer
	padLat := (maxLat - minLat) * tileBuffer
	return orb.Bound{
		Min: orb.Point{minLon - padLon, minLat - padLat},
		Max: orb.Point{maxLon + padLon, maxLat + padLat},
	}
}

// RenderTile draws the dataset onto one web map tile. Every feature is
// symbolized by the first matching rule; features matching no rule are not
// drawn. Filter evaluation errors abort the tile.
func RenderTile(ds *Dataset, ruleset []StyleRule, z, x, y int) (*image.NRGBA, error) {
	img := canvas.New(crs.TileSize)
	bound := tileBound(z, x, y)
	ts := newTileSpace(z, x, y)
	denom := ScaleDenominator(z)

	for i := range ds.Features {
		f := &ds.Features[i]
		if !bound.Intersects(f.Geom.Bound()) {
			continue
		}
		var styles []symbols.DrawParams
		matched := false
		for _, r := range ruleset {
			ok, err := r.Filter.Eval(f.Attrs)
			if err != nil {
				return nil, err
			}
			if ok {
				styles = r.Styles
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for _, dp := range styles {
			if !styleVisible(dp, denom) {
				continue
			}
			drawGeometry(img, ts, f.Geom, dp)
		}
	}
	return img, nil
}

func drawGeometry(img *image.NRGBA, ts tileSpace, g orb.Geometry, dp symbols.DrawParams) {
	switch v := g.(type) {
	case orb.Point:
		drawMarker(img, ts.point(v), dp)
	case orb.MultiPoint:
		for _, p := range v {
			drawMarker(img, ts.point(p), dp)
		}
	case orb.LineString:
		if dp.HasStroke {
			canvas.StrokePolyline(img, ts.line(v), dp.Stroke, dp.StrokeWidth, dp.StrokeOpacity)
		}
	case orb.MultiLineString:
		for _, ls := range v {
			if dp.HasStroke {
				canvas.StrokePolyline(img, ts.line(ls), dp.Stroke, dp.StrokeWidth, dp.StrokeOpacity)
			}
		}
	case orb.Ring:
		drawGeometry(img, ts, orb.Polygon{v}, dp)
	case orb.Polygon:
		drawPolygon(img, ts, v, dp)
	case orb.MultiPolygon:
		for _, p := range v {
			drawPolygon(img, ts, p, dp)
		}
	case orb.Collection:
		for _, child := range v {
			drawGeometry(img, ts, child, dp)
		}
	}
}

func drawPolygon(img *image.NRGBA, ts tileSpace, poly orb.Polygon, dp symbols.DrawParams) {
	rings := make([][]canvas.Point, 0, len(poly))
	for _, r := range poly {
		rings = append(rings, ts.ring(r))
	}
	if dp.HasFill {
		canvas.FillPolygon(img, rings, dp.Fill, dp.FillOpacity)
	}
	if dp.HasStroke {
		for _, r := range rings {
			canvas.StrokeRing(img, r, dp.Stroke, dp.StrokeWidth, dp.StrokeOpacity)
		}
	}
}

func drawMarker(img *image.NRGBA, c canvas.Point, dp symbols.DrawParams) {
	radius := dp.PointSize / 2
	if dp.HasFill {
		canvas.FillCircle(img, c, radius, dp.Fill, dp.FillOpacity)
	}
	if dp.HasStroke {
		canvas.StrokeCircle(img, c, radius, dp.StrokeWidth, dp.Stroke, dp.StrokeOpacity)
	}
}
