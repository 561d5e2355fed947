package raster

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/DavideDeMarchi/geolayer/internal/crs"
	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

// Loader opens one band of a raster reference.
type Loader interface {
	Open(ctx context.Context, ref string, band int) (*Grid, error)
}

// gridFile is the on-disk / in-redis exchange encoding of a raster: a JSON
// header plus per-band row-major samples. Image-format decoding (GeoTIFF and
// friends) stays with the external ingestion pipeline that writes these.
type gridFile struct {
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Transform [6]float64  `json:"transform"`
	NoData    float64     `json:"nodata"`
	EPSG      int         `json:"epsg"`
	Proj      string      `json:"proj,omitempty"`
	DType     DataType    `json:"dtype,omitempty"`
	Bands     [][]float64 `json:"bands"`
}

func (gf *gridFile) band(band int) (*Grid, error) {
	if band < 1 || band > len(gf.Bands) {
		return nil, geoerr.Config("band %d out of range, file has %d", band, len(gf.Bands))
	}
	epsg := gf.EPSG
	if epsg == 0 {
		epsg = 4326
	}
	proj, err := crs.Resolve(epsg, gf.Proj)
	if err != nil {
		return nil, err
	}
	g, err := NewGrid(gf.Bands[band-1], gf.Width, gf.Height, crs.GeoTransform(gf.Transform), gf.NoData, proj)
	if err != nil {
		return nil, err
	}
	if gf.DType != "" {
		g.DType = gf.DType
	}
	return g, nil
}

func decodeGridFile(data []byte, ref string, band int) (*Grid, error) {
	var gf gridFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, &geoerr.ConfigError{What: fmt.Sprintf("raster %s: bad grid encoding", ref), Err: err}
	}
	return gf.band(band)
}

// RedisScheme prefixes raster references stored in Redis instead of files.
const RedisScheme = "redis:"

// FileLoader reads grid files from the filesystem.
type FileLoader struct{}

func (FileLoader) Open(_ context.Context, ref string, band int) (*Grid, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("raster %s: %w", ref, err)
	}
	return decodeGridFile(data, ref, band)
}

// RedisLoader resolves "redis:<key>" references.
type RedisLoader struct {
	RDB *redis.Client
}

func (l *RedisLoader) Open(ctx context.Context, ref string, band int) (*Grid, error) {
	key := strings.TrimPrefix(ref, RedisScheme)
	data, err := l.RDB.Get(ctx, key).Bytes()
	if err != nil {
		return nil, fmt.Errorf("raster %s: %w", ref, err)
	}
	return decodeGridFile(data, ref, band)
}

// MemLoader serves registered grids, used by tests and the WKT-style demos.
type MemLoader struct {
	Grids map[string]*Grid
}

func (l *MemLoader) Open(_ context.Context, ref string, band int) (*Grid, error) {
	g, ok := l.Grids[ref]
	if !ok {
		return nil, fmt.Errorf("raster %s: %w", ref, os.ErrNotExist)
	}
	if band != 1 {
		return nil, geoerr.Config("band %d out of range for in-memory grid", band)
	}
	return g, nil
}

// Resolver dispatches references by scheme: "redis:" keys when a Redis
// loader is wired, plain paths otherwise.
type Resolver struct {
	File  Loader
	Redis Loader
}

func (r *Resolver) Open(ctx context.Context, ref string, band int) (*Grid, error) {
	if strings.HasPrefix(ref, RedisScheme) {
		if r.Redis == nil {
			return nil, geoerr.Config("raster %s: no redis loader configured", ref)
		}
		return r.Redis.Open(ctx, ref, band)
	}
	if r.File == nil {
		return nil, geoerr.Config("raster %s: no file loader configured", ref)
	}
	return r.File.Open(ctx, ref, band)
}

// EncodeGridFile builds the exchange encoding for a set of bands sharing one
// georeferencing. Used by tests and ingestion tooling.
func EncodeGridFile(width, height int, tr crs.GeoTransform, nodata float64, epsg int, proj string, bands ...[]float64) ([]byte, error) {
	for i, b := range bands {
		if len(b) != width*height {
			return nil, geoerr.Config("band %d length %d does not match %dx%d", i+1, len(b), width, height)
		}
	}
	return json.Marshal(gridFile{
		Width: width, Height: height, Transform: [6]float64(tr),
		NoData: nodata, EPSG: epsg, Proj: proj, Bands: bands,
	})
}
