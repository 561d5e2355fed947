// Package geolayer is the public façade: raster and vector map layers that
// render XYZ tiles and answer identify queries at a point.
package geolayer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/rs/zerolog"

	"github.com/DavideDeMarchi/geolayer/internal/crs"
)

// MaxZoom bounds tile and identify requests.
const MaxZoom = 20

// DefaultIdentifyWidth is the popup width in pixels used by OnClick when
// the layer does not override it.
const DefaultIdentifyWidth = 180

// Layer is the behavior the tile server needs from both layer types.
type Layer interface {
	Name() string
	RenderTile(ctx context.Context, z, x, y int) (*image.NRGBA, error)
	// Identify returns the formatted attribute lines at a point, or
	// ok=false when nothing is there. A miss is not an error.
	Identify(ctx context.Context, lon, lat float64, zoom int) (IdentifyResult, bool, error)
	// Fingerprint captures everything that affects pixel output, for
	// tile-cache keys.
	Fingerprint() string
	Describe() string
}

// IdentifyResult is what a click on the map yields: a short title and
// display lines, one per field or band.
type IdentifyResult struct {
	Title string
	Lines []string
	Width int // popup width, pixels
}

func (r IdentifyResult) String() string {
	if len(r.Lines) == 0 {
		return r.Title
	}
	return r.Title + ": " + strings.Join(r.Lines, ", ")
}

// Popup displays identify results in a UI layer. Implementations live with
// the widget; failures are logged and swallowed by OnClick.
type Popup interface {
	Show(ctx context.Context, at [2]float64, result IdentifyResult) error
}

// TileLayerURL returns the XYZ template a slippy-map widget consumes for a
// named layer, e.g. http://host/tiles/roads/{z}/{x}/{y}.png.
func TileLayerURL(baseURL, layer string, maxZoom int) string {
	if maxZoom <= 0 || maxZoom > MaxZoom {
		maxZoom = MaxZoom
	}
	base := strings.TrimRight(baseURL, "/")
	return fmt.Sprintf("%s/tiles/%s/{z}/{x}/{y}.png?maxzoom=%d", base, layer, maxZoom)
}

// OnClick runs identify at a click location and hands the result to the
// popup. Popup and identify failures are logged, never propagated: a broken
// popup must not take down map interaction.
func OnClick(ctx context.Context, l Layer, popup Popup, lon, lat float64, zoom int, log *zerolog.Logger) {
	res, ok, err := l.Identify(ctx, lon, lat, zoom)
	if err != nil {
		if log != nil {
			log.Warn().Err(err).Str("layer", l.Name()).Msg("identify failed")
		}
		return
	}
	if !ok || popup == nil {
		return
	}
	if err := popup.Show(ctx, [2]float64{lon, lat}, res); err != nil && log != nil {
		log.Warn().Err(err).Str("layer", l.Name()).Msg("popup failed")
	}
}

// EncodePNG serializes a rendered tile.
func EncodePNG(img *image.NRGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode tile: %w", err)
	}
	return buf.Bytes(), nil
}

func validTileRequest(z, x, y int) bool {
	return z <= MaxZoom && crs.ValidTile(z, x, y)
}

func validIdentifyRequest(lon, lat float64, zoom int) bool {
	return zoom >= 0 && zoom <= MaxZoom &&
		lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}
