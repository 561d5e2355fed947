// Package metrics exposes Prometheus metrics for the tile service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

type Config struct {
	Enabled bool
	Path    string
	Build   BuildInfo
}

type Provider struct {
	reg       *prometheus.Registry
	buildInfo *prometheus.GaugeVec

	TilesRendered *prometheus.CounterVec
	RenderSeconds *prometheus.HistogramVec
	Identifies    *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "branch", "build_date"},
	)
	reg.MustRegister(build)
	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build.WithLabelValues(v.Version, v.Revision, v.Branch, v.BuildDate).Set(1)

	p := &Provider{reg: reg, buildInfo: build}

	p.TilesRendered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geolayer_tiles_rendered_total",
			Help: "Tiles rendered, by layer and source kind.",
		},
		[]string{"layer", "kind"},
	)
	p.RenderSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geolayer_tile_render_seconds",
			Help:    "Wall time spent rendering one tile.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"layer"},
	)
	p.Identifies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geolayer_identify_requests_total",
			Help: "Identify requests, by layer and outcome (hit, miss, error).",
		},
		[]string{"layer", "outcome"},
	)
	p.Invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geolayer_invalidations_total",
			Help: "Layer revision bumps, by source (api, kafka).",
		},
		[]string{"source"},
	)
	p.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geolayer_tile_cache_hits_total",
		Help: "Tile cache lookups served from cache.",
	})
	p.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geolayer_tile_cache_misses_total",
		Help: "Tile cache lookups that required a render.",
	})
	reg.MustRegister(p.TilesRendered, p.RenderSeconds, p.Identifies,
		p.Invalidations, p.cacheHits, p.cacheMisses)

	return p
}

// CacheHit and CacheMiss satisfy the tile cache's Recorder interface.
func (p *Provider) CacheHit()  { p.cacheHits.Inc() }
func (p *Provider) CacheMiss() { p.cacheMisses.Inc() }

// Invalidated satisfies the invalidation consumer's Counter interface.
func (p *Provider) Invalidated(source string) {
	p.Invalidations.WithLabelValues(source).Inc()
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }
