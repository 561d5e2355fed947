package crs

import "math"

const (
	// OriginShift is half the spherical-mercator earth circumference in meters.
	OriginShift = 20037508.342789244

	// TileSize is the standard web map tile dimension in pixels.
	TileSize = 256

	// MaxLatitude is the latitude bound of the WebMercator projection.
	MaxLatitude = 85.05112878
)

// WebMercator implements Projection for EPSG:3857.
type WebMercator struct{}

func (WebMercator) EPSG() int { return 3857 }

func (WebMercator) ToWGS84(x, y float64) (lon, lat float64) {
	lon = x / OriginShift * 180.0
	lat = y / OriginShift * 180.0
	lat = 180.0 / math.Pi * (2.0*math.Atan(math.Exp(lat*math.Pi/180.0)) - math.Pi/2.0)
	return
}

func (WebMercator) FromWGS84(lon, lat float64) (x, y float64) {
	lat = clampLat(lat)
	x = lon * OriginShift / 180.0
	y = math.Log(math.Tan((90.0+lat)*math.Pi/360.0)) / (math.Pi / 180.0)
	y = y * OriginShift / 180.0
	return
}

func clampLat(lat float64) float64 {
	if lat > MaxLatitude {
		return MaxLatitude
	}
	if lat < -MaxLatitude {
		return -MaxLatitude
	}
	return lat
}

// LonLatToPixel converts WGS84 lon/lat to global pixel coordinates at a zoom
// level (origin top-left, TileSize pixels per tile).
func LonLatToPixel(lon, lat float64, zoom int) (px, py float64) {
	lat = clampLat(lat)
	size := float64(uint64(TileSize) << uint(zoom))
	px = (lon + 180.0) / 360.0 * size
	latRad := lat * math.Pi / 180.0
	py = (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * size
	return
}

// PixelToLonLat is the inverse of LonLatToPixel.
func PixelToLonLat(px, py float64, zoom int) (lon, lat float64) {
	size := float64(uint64(TileSize) << uint(zoom))
	lon = px/size*360.0 - 180.0
	lat = 180.0 / math.Pi * math.Atan(math.Sinh(math.Pi*(1.0-2.0*py/size)))
	return
}

// TileBounds returns the WGS84 bounding box of tile (z, x, y).
func TileBounds(z, x, y int) (minLon, minLat, maxLon, maxLat float64) {
	n := math.Exp2(float64(z))
	minLon = float64(x)/n*360.0 - 180.0
	maxLon = float64(x+1)/n*360.0 - 180.0
	maxLat = 180.0 / math.Pi * math.Atan(math.Sinh(math.Pi*(1.0-2.0*float64(y)/n)))
	minLat = 180.0 / math.Pi * math.Atan(math.Sinh(math.Pi*(1.0-2.0*float64(y+1)/n)))
	return
}

// ValidTile reports whether (z, x, y) addresses an existing tile.
func ValidTile(z, x, y int) bool {
	if z < 0 || z > 24 {
		return false
	}
	n := 1 << uint(z)
	return x >= 0 && x < n && y >= 0 && y < n
}
