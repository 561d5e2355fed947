// Package server exposes the layer registry over HTTP: XYZ tiles, identify,
// legends and cache invalidation.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/DavideDeMarchi/geolayer/internal/config"
	"github.com/DavideDeMarchi/geolayer/internal/health"
	mylog "github.com/DavideDeMarchi/geolayer/internal/logger"
	"github.com/DavideDeMarchi/geolayer/internal/metrics"
	imw "github.com/DavideDeMarchi/geolayer/internal/middleware"
	"github.com/DavideDeMarchi/geolayer/internal/router"
	"github.com/DavideDeMarchi/geolayer/internal/symbols"
	"github.com/DavideDeMarchi/geolayer/internal/tilecache"
	"github.com/DavideDeMarchi/geolayer/pkg/geolayer"
)

// Options carries the server dependencies. Store and Metrics may be nil;
// tiles are then rendered on every request and not counted.
type Options struct {
	Layers  []geolayer.Layer
	Store   tilecache.Store
	Revs    *tilecache.Revisions
	Metrics *metrics.Provider
	Logger  *zerolog.Logger
}

type Server struct {
	layers map[string]geolayer.Layer
	order  []string
	store  tilecache.Store
	revs   *tilecache.Revisions
	met    *metrics.Provider
	log    *zerolog.Logger
}

func New(opts Options) *Server {
	s := &Server{
		layers: make(map[string]geolayer.Layer, len(opts.Layers)),
		store:  opts.Store,
		revs:   opts.Revs,
		met:    opts.Metrics,
		log:    opts.Logger,
	}
	if s.revs == nil {
		s.revs = &tilecache.Revisions{}
	}
	for _, l := range opts.Layers {
		if _, dup := s.layers[l.Name()]; dup {
			continue
		}
		s.layers[l.Name()] = l
		s.order = append(s.order, l.Name())
	}
	return s
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(imw.Recover(s.log))
	r.Use(imw.Logging(s.log))
	r.Use(imw.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(func() int { return len(s.layers) }))
	if s.met != nil {
		r.Method(http.MethodGet, "/metrics", s.met.Handler())
	}

	r.Get("/layers", s.handleLayers)
	r.Get("/tiles/{layer}/{z}/{x}/{y}.png", s.handleTile)
	r.Get("/identify", s.handleIdentify)
	r.Get("/legend/{layer}", s.handleLegend)
	r.Get("/legend/{layer}/{index}.png", s.handleSwatch)
	r.Post("/invalidate/{layer}", s.handleInvalidate)
	return r
}

func (s *Server) layer(w http.ResponseWriter, name string) (geolayer.Layer, bool) {
	l, ok := s.layers[name]
	if !ok {
		http.Error(w, "unknown layer", http.StatusNotFound)
	}
	return l, ok
}

func layerKind(l geolayer.Layer) string {
	switch l.(type) {
	case *geolayer.RasterLayer:
		return "raster"
	case *geolayer.VectorLayer:
		return "vector"
	default:
		return "layer"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleLayers(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Name     string `json:"name"`
		Kind     string `json:"kind"`
		Describe string `json:"describe"`
		Tiles    string `json:"tiles"`
	}
	out := make([]entry, 0, len(s.order))
	for _, name := range s.order {
		l := s.layers[name]
		out = append(out, entry{
			Name:     name,
			Kind:     layerKind(l),
			Describe: l.Describe(),
			Tiles:    geolayer.TileLayerURL("", name, geolayer.MaxZoom),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	tr, err := router.ParseTileRequest(
		chi.URLParam(r, "layer"),
		chi.URLParam(r, "z"), chi.URLParam(r, "x"), chi.URLParam(r, "y"),
		geolayer.MaxZoom)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name, z, x, y := tr.Layer, tr.Z, tr.X, tr.Y
	l, ok := s.layer(w, name)
	if !ok {
		return
	}
	ctx := mylog.WithLayer(r.Context(), name)

	key := tilecache.Key(name, s.revs.Current(name), z, x, y, l.Fingerprint())
	if s.store != nil {
		if data, ok := s.store.Get(ctx, key); ok {
			writePNG(w, data)
			return
		}
	}

	start := time.Now()
	img, err := l.RenderTile(ctx, z, x, y)
	if err != nil {
		mylog.FromContext(ctx, s.log).Error().Err(err).
			Int("z", z).Int("x", x).Int("y", y).Msg("tile render failed")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	if s.met != nil {
		s.met.RenderSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
		s.met.TilesRendered.WithLabelValues(name, layerKind(l)).Inc()
	}

	data, err := geolayer.EncodePNG(img)
	if err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	if s.store != nil {
		s.store.Set(ctx, key, data)
	}
	writePNG(w, data)
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	ir, err := router.ParseIdentifyRequest(r, geolayer.MaxZoom)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := ir.Layer
	l, ok := s.layer(w, name)
	if !ok {
		return
	}
	ctx := mylog.WithLayer(r.Context(), name)

	res, found, err := l.Identify(ctx, ir.Lon, ir.Lat, ir.Zoom)
	if err != nil {
		if s.met != nil {
			s.met.Identifies.WithLabelValues(name, "error").Inc()
		}
		mylog.FromContext(ctx, s.log).Error().Err(err).Msg("identify failed")
		http.Error(w, "identify failed", http.StatusInternalServerError)
		return
	}
	type resp struct {
		Found bool     `json:"found"`
		Title string   `json:"title,omitempty"`
		Lines []string `json:"lines,omitempty"`
		Width int      `json:"width,omitempty"`
	}
	if !found {
		if s.met != nil {
			s.met.Identifies.WithLabelValues(name, "miss").Inc()
		}
		writeJSON(w, http.StatusOK, resp{Found: false})
		return
	}
	if s.met != nil {
		s.met.Identifies.WithLabelValues(name, "hit").Inc()
	}
	writeJSON(w, http.StatusOK, resp{
		Found: true, Title: res.Title, Lines: res.Lines, Width: res.Width,
	})
}

func (s *Server) handleLegend(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "layer")
	l, ok := s.layer(w, name)
	if !ok {
		return
	}
	vl, ok := l.(*geolayer.VectorLayer)
	if !ok {
		http.Error(w, "layer has no legend", http.StatusNotFound)
		return
	}
	type item struct {
		Rule   string `json:"rule"`
		Swatch string `json:"swatch"`
	}
	rules := vl.Symbology()
	out := make([]item, 0, len(rules))
	for i, rule := range rules {
		out = append(out, item{
			Rule:   rule.Rule,
			Swatch: "/legend/" + name + "/" + strconv.Itoa(i) + ".png",
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSwatch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "layer")
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || idx < 0 {
		http.Error(w, "bad legend index", http.StatusBadRequest)
		return
	}
	l, ok := s.layer(w, name)
	if !ok {
		return
	}
	vl, ok := l.(*geolayer.VectorLayer)
	if !ok || idx >= len(vl.Symbology()) {
		http.Error(w, "no such legend entry", http.StatusNotFound)
		return
	}
	img, err := vl.Symbol2Image(vl.Symbology()[idx].Symbol, symbols.SwatchOptions{Size: 2})
	if err != nil {
		http.Error(w, "swatch failed", http.StatusInternalServerError)
		return
	}
	data, err := geolayer.EncodePNG(img)
	if err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	writePNG(w, data)
}

// handleInvalidate bumps the layer revision, making all cached tiles of the
// previous revision unreachable.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "layer")
	if _, ok := s.layer(w, name); !ok {
		return
	}
	rev := s.revs.Bump(name)
	if s.met != nil {
		s.met.Invalidations.WithLabelValues("api").Inc()
	}
	mylog.FromContext(r.Context(), s.log).Info().
		Str("layer", name).Uint64("revision", rev).Msg("layer invalidated")
	writeJSON(w, http.StatusOK, map[string]any{"layer": name, "revision": rev})
}

// Run serves the router until ctx is canceled or the listener fails.
func Run(ctx context.Context, cfg config.Config, s *Server) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", cfg.Addr).Msg("http listen")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
