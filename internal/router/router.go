// Package router validates and normalizes the query parameters of the
// public HTTP endpoints.
package router

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// TileRequest is a parsed XYZ tile address.
type TileRequest struct {
	Layer string
	Z     int
	X     int
	Y     int
}

// ParseTileRequest validates the path segments of /tiles/{layer}/{z}/{x}/{y}.png.
func ParseTileRequest(layer, z, x, y string, maxZoom int) (TileRequest, error) {
	layer = strings.TrimSpace(layer)
	if layer == "" {
		return TileRequest{}, errors.New("missing layer")
	}
	zi, err := strconv.Atoi(z)
	if err != nil {
		return TileRequest{}, fmt.Errorf("z: %w", err)
	}
	xi, err := strconv.Atoi(x)
	if err != nil {
		return TileRequest{}, fmt.Errorf("x: %w", err)
	}
	yi, err := strconv.Atoi(y)
	if err != nil {
		return TileRequest{}, fmt.Errorf("y: %w", err)
	}
	if zi < 0 || zi > maxZoom {
		return TileRequest{}, fmt.Errorf("zoom %d outside [0, %d]", zi, maxZoom)
	}
	return TileRequest{Layer: layer, Z: zi, X: xi, Y: yi}, nil
}

// IdentifyRequest is a parsed /identify query.
type IdentifyRequest struct {
	Layer string
	Lon   float64
	Lat   float64
	Zoom  int
}

// ParseIdentifyRequest validates user input for /identify and returns a
// normalized request.
func ParseIdentifyRequest(r *http.Request, maxZoom int) (IdentifyRequest, error) {
	q := r.URL.Query()

	layer := strings.TrimSpace(q.Get("layer"))
	if layer == "" {
		return IdentifyRequest{}, errors.New("missing required parameter: layer")
	}
	lon, err := parseFloat(q.Get("lon"))
	if err != nil {
		return IdentifyRequest{}, fmt.Errorf("lon: %w", err)
	}
	lat, err := parseFloat(q.Get("lat"))
	if err != nil {
		return IdentifyRequest{}, fmt.Errorf("lat: %w", err)
	}
	zoom, err := strconv.Atoi(strings.TrimSpace(q.Get("zoom")))
	if err != nil {
		return IdentifyRequest{}, fmt.Errorf("zoom: %w", err)
	}
	if lon < -180 || lon > 180 {
		return IdentifyRequest{}, fmt.Errorf("lon %g outside [-180, 180]", lon)
	}
	if lat < -90 || lat > 90 {
		return IdentifyRequest{}, fmt.Errorf("lat %g outside [-90, 90]", lat)
	}
	if zoom < 0 || zoom > maxZoom {
		return IdentifyRequest{}, fmt.Errorf("zoom %d outside [0, %d]", zoom, maxZoom)
	}
	return IdentifyRequest{Layer: layer, Lon: lon, Lat: lat, Zoom: zoom}, nil
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("missing value")
	}
	return strconv.ParseFloat(s, 64)
}
