package raster

import (
	"image"
	"image/color"
	"math"

	"github.com/DavideDeMarchi/geolayer/internal/colorizer"
	"github.com/DavideDeMarchi/geolayer/internal/crs"
	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

// RenderTile colors one web map tile from a single band. Pixels outside the
// extent or equal to nodata come out fully transparent.
func RenderTile(g *Grid, cz *colorizer.Colorizer, z, x, y int, opacity float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, crs.TileSize, crs.TileSize))
	baseX := float64(x * crs.TileSize)
	baseY := float64(y * crs.TileSize)
	for py := 0; py < crs.TileSize; py++ {
		for px := 0; px < crs.TileSize; px++ {
			lon, lat := crs.PixelToLonLat(baseX+float64(px)+0.5, baseY+float64(py)+0.5, z)
			v, ok := g.SampleLonLat(lon, lat)
			if !ok || g.IsNoData(v) {
				continue
			}
			c := cz.Evaluate(v)
			c.A = scaleAlpha(c.A, opacity)
			img.SetNRGBA(px, py, c)
		}
	}
	return img
}

// ScaleRange maps raw band values onto a display channel.
type ScaleRange struct {
	Min, Max float64
}

func (s ScaleRange) channel(v float64) uint8 {
	if s.Max <= s.Min {
		return 0
	}
	t := (v - s.Min) / (s.Max - s.Min)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return uint8(math.Round(t * 255))
}

// RenderTileRGB composes three bands into an RGB tile. A pixel is
// transparent when any band is nodata or out of extent.
func RenderTileRGB(r, g, b *Grid, scales [3]ScaleRange, z, x, y int, opacity float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, crs.TileSize, crs.TileSize))
	baseX := float64(x * crs.TileSize)
	baseY := float64(y * crs.TileSize)
	bands := [3]*Grid{r, g, b}
	for py := 0; py < crs.TileSize; py++ {
		for px := 0; px < crs.TileSize; px++ {
			lon, lat := crs.PixelToLonLat(baseX+float64(px)+0.5, baseY+float64(py)+0.5, z)
			var ch [3]uint8
			ok := true
			for i, band := range bands {
				v, in := band.SampleLonLat(lon, lat)
				if !in || band.IsNoData(v) {
					ok = false
					break
				}
				ch[i] = scales[i].channel(v)
			}
			if !ok {
				continue
			}
			img.SetNRGBA(px, py, color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: scaleAlpha(255, opacity)})
		}
	}
	return img
}

func errSizeMismatch(a, b *Grid) error {
	return geoerr.Config("band size %dx%d does not match %dx%d", a.Width, a.Height, b.Width, b.Height)
}

func scaleAlpha(a uint8, opacity float64) uint8 {
	if opacity >= 1 {
		return a
	}
	if opacity <= 0 {
		return 0
	}
	return uint8(math.Round(float64(a) * opacity))
}

// IndexGrid derives the normalized difference (b1-b2)/(b1+b2) of two aligned
// bands, the transform the Sentinel-2 index display uses. Result nodata is
// propagated from either input.
func IndexGrid(b1, b2 *Grid) (*Grid, error) {
	if b1.Width != b2.Width || b1.Height != b2.Height {
		return nil, errSizeMismatch(b1, b2)
	}
	data := make([]float64, len(b1.Data))
	const nodata = -9999
	for i := range data {
		v1, v2 := b1.Data[i], b2.Data[i]
		if b1.IsNoData(v1) || b2.IsNoData(v2) || v1+v2 == 0 {
			data[i] = nodata
			continue
		}
		data[i] = (v1 - v2) / (v1 + v2)
	}
	out, err := NewGrid(data, b1.Width, b1.Height, b1.Transform, nodata, b1.Proj)
	if err != nil {
		return nil, err
	}
	return out, nil
}
