// Package config loads service settings from the environment and layer
// definitions from a YAML catalog file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	LayersPath     string
	RedisAddr      string
	RedisEnabled   bool
	TileCacheSize  int
	TileCacheTTL   time.Duration
	MetricsEnabled bool
	Invalidation   InvalidationCfg
}

func FromEnv() Config {
	return Config{
		Addr:           getenv("ADDR", ":8080"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LayersPath:     getenv("LAYERS_PATH", "layers.yaml"),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		RedisEnabled:   getbool("REDIS_ENABLED", false),
		TileCacheSize:  getint("TILE_CACHE_SIZE", 2048),
		TileCacheTTL:   getduration("TILE_CACHE_TTL", 15*time.Minute),
		MetricsEnabled: getbool("METRICS_ENABLED", true),
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "layer-invalidation"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "tileserver"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// PropertyCfg is one symbolizer property of a style.
type PropertyCfg struct {
	Symbolizer string `yaml:"symbolizer"`
	Name       string `yaml:"name"`
	Value      any    `yaml:"value"`
}

// RuleCfg pairs a filter rule with a symbol, given as styles of properties.
type RuleCfg struct {
	Rule   string          `yaml:"rule"`
	Symbol [][]PropertyCfg `yaml:"symbol"`
}

// StopCfg is one colorizer stop.
type StopCfg struct {
	Value float64 `yaml:"value"`
	Color string  `yaml:"color"`
	Mode  string  `yaml:"mode"`
}

type ColorizerCfg struct {
	DefaultMode  string    `yaml:"default_mode"`
	DefaultColor string    `yaml:"default_color"`
	Stops        []StopCfg `yaml:"stops"`
}

// LayerCfg declares one servable layer.
type LayerCfg struct {
	Name    string  `yaml:"name"`
	Type    string  `yaml:"type"` // raster or vector
	Ref     string  `yaml:"ref"`  // grid file path, redis:<key>, or .fgb path
	Band    int     `yaml:"band"`
	Opacity float64 `yaml:"opacity"`

	Colorizer *ColorizerCfg `yaml:"colorizer"`

	WKT       []string         `yaml:"wkt"`
	Attrs     []map[string]any `yaml:"attributes"`
	Symbology []RuleCfg        `yaml:"symbology"`
}

type LayersFile struct {
	Layers []LayerCfg `yaml:"layers"`
}

// LoadLayers reads and validates the layer catalog.
func LoadLayers(path string) (LayersFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LayersFile{}, fmt.Errorf("layer catalog: %w", err)
	}
	return ParseLayers(data)
}

func ParseLayers(data []byte) (LayersFile, error) {
	var lf LayersFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return LayersFile{}, &geoerr.ConfigError{What: "layer catalog", Err: err}
	}
	seen := map[string]bool{}
	for i, l := range lf.Layers {
		if l.Name == "" {
			return LayersFile{}, geoerr.Config("layer %d has no name", i)
		}
		if seen[l.Name] {
			return LayersFile{}, geoerr.Config("duplicate layer %q", l.Name)
		}
		seen[l.Name] = true
		switch l.Type {
		case "raster", "vector":
		default:
			return LayersFile{}, geoerr.Config("layer %q: unknown type %q", l.Name, l.Type)
		}
		if l.Type == "raster" && l.Ref == "" {
			return LayersFile{}, geoerr.Config("layer %q: raster layers need a ref", l.Name)
		}
		if l.Type == "vector" && l.Ref == "" && len(l.WKT) == 0 {
			return LayersFile{}, geoerr.Config("layer %q: vector layers need a ref or wkt", l.Name)
		}
	}
	return lf, nil
}
