// Package crs converts between WGS84 geographic coordinates, projected
// coordinate systems and web map tile/pixel addresses.
package crs

import (
	"strings"

	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

// Projection converts between a layer's native CRS and WGS84 lon/lat degrees.
type Projection interface {
	ToWGS84(x, y float64) (lon, lat float64)
	FromWGS84(lon, lat float64) (x, y float64)
	EPSG() int
}

// Resolve picks the projection for a layer. A non-empty proj4 string has
// precedence over the EPSG code.
func Resolve(epsg int, proj string) (Projection, error) {
	if strings.TrimSpace(proj) != "" {
		return ParseProj(proj)
	}
	return ForEPSG(epsg)
}

// ForEPSG returns a projection for the supported EPSG codes.
func ForEPSG(epsg int) (Projection, error) {
	switch epsg {
	case 4326:
		return WGS84{}, nil
	case 3857, 900913:
		return WebMercator{}, nil
	}
	return nil, geoerr.Config("unsupported EPSG code %d", epsg)
}

// ParseProj understands the small proj4 subset the layer sources use:
// geographic (+proj=longlat) and spherical mercator (+proj=merc / webmerc).
func ParseProj(proj string) (Projection, error) {
	var kind string
	for _, tok := range strings.Fields(proj) {
		if v, ok := strings.CutPrefix(tok, "+proj="); ok {
			kind = v
		}
	}
	switch kind {
	case "longlat", "latlong":
		return WGS84{}, nil
	case "merc", "webmerc":
		return WebMercator{}, nil
	case "":
		return nil, geoerr.Config("proj string %q has no +proj term", proj)
	}
	return nil, geoerr.Config("unsupported +proj=%s", kind)
}

// WGS84 is the identity projection for data already in EPSG:4326.
type WGS84 struct{}

func (WGS84) ToWGS84(x, y float64) (float64, float64)       { return x, y }
func (WGS84) FromWGS84(lon, lat float64) (float64, float64) { return lon, lat }
func (WGS84) EPSG() int                                     { return 4326 }
