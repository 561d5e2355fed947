package symbols

import (
	"image"
	"image/color"

	"github.com/DavideDeMarchi/geolayer/internal/canvas"
	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

// FeatureKind selects the preview geometry drawn by Swatch.
type FeatureKind string

const (
	KindPoint    FeatureKind = "Point"
	KindPolyline FeatureKind = "Polyline"
	KindPolygon  FeatureKind = "Polygon"
)

// swatch canvas edge per size 1/2/3.
var swatchSizes = map[int]int{1: 30, 2: 80, 3: 256}

// SwatchOptions mirrors the symbol2Image parameters.
type SwatchOptions struct {
	Size          int         // 1, 2 or 3
	Feature       FeatureKind // geometry drawn in the preview
	ClipDimension int         // center-crop edge; >= canvas means no crop
	ShowBorder    bool
}

// Swatch renders each style of the symbol onto a fixed-size canvas, polygon
// fill then stroke, honoring fill-opacity and stroke-width.
func Swatch(sym Symbol, opts SwatchOptions) (*image.NRGBA, error) {
	edge, ok := swatchSizes[opts.Size]
	if !ok {
		return nil, geoerr.Config("swatch size must be 1, 2 or 3, got %d", opts.Size)
	}
	if opts.Feature == "" {
		opts.Feature = KindPoint
	}
	img := canvas.New(edge)
	e := float64(edge)
	margin := e * 0.15

	for _, style := range sym {
		dp, err := Resolve(style)
		if err != nil {
			return nil, err
		}
		switch opts.Feature {
		case KindPolygon:
			ring := []canvas.Point{
				{X: margin, Y: margin},
				{X: e - margin, Y: margin},
				{X: e - margin, Y: e - margin},
				{X: margin, Y: e - margin},
			}
			if dp.HasFill {
				canvas.FillPolygon(img, [][]canvas.Point{ring}, dp.Fill, dp.FillOpacity)
			}
			if dp.HasStroke {
				canvas.StrokeRing(img, ring, dp.Stroke, dp.StrokeWidth, dp.StrokeOpacity)
			}
		case KindPolyline:
			pts := []canvas.Point{{X: margin, Y: e - margin}, {X: e - margin, Y: margin}}
			if dp.HasStroke {
				canvas.StrokePolyline(img, pts, dp.Stroke, dp.StrokeWidth, dp.StrokeOpacity)
			}
		case KindPoint:
			c := canvas.Point{X: e / 2, Y: e / 2}
			r := dp.PointSize / 2
			if r <= 0 {
				r = 3
			}
			// scale the marker with the canvas so size 3 previews stay readable
			r *= e / float64(swatchSizes[1])
			if dp.HasFill {
				canvas.FillCircle(img, c, r, dp.Fill, dp.FillOpacity)
			}
			if dp.HasStroke {
				canvas.StrokeCircle(img, c, r, dp.StrokeWidth, dp.Stroke, dp.StrokeOpacity)
			}
		default:
			return nil, geoerr.Config("unknown swatch feature kind %q", opts.Feature)
		}
	}

	if opts.ClipDimension > 0 && opts.ClipDimension < edge {
		img = canvas.CropCenter(img, opts.ClipDimension)
	}
	if opts.ShowBorder {
		canvas.Border(img, color.NRGBA{128, 128, 128, 255})
	}
	return img, nil
}
