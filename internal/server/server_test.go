package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/DavideDeMarchi/geolayer/internal/crs"
	"github.com/DavideDeMarchi/geolayer/internal/raster"
	"github.com/DavideDeMarchi/geolayer/internal/symbols"
	"github.com/DavideDeMarchi/geolayer/internal/tilecache"
	"github.com/DavideDeMarchi/geolayer/pkg/geolayer"
)

// countingStore wraps a Store and counts writes so tests can tell cached
// responses from fresh renders.
type countingStore struct {
	inner tilecache.Store
	sets  int
}

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, bool) {
	return s.inner.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, val []byte) {
	s.sets++
	s.inner.Set(ctx, key, val)
}

func demLayer(t *testing.T) *geolayer.RasterLayer {
	t.Helper()
	data := []float64{
		0, 0, 0,
		0, 42, 0,
		0, 0, 0,
	}
	tr := crs.NewNorthUp(-180, crs.MaxLatitude, 360.0/3, 2*crs.MaxLatitude/3)
	g, err := raster.NewGrid(data, 3, 3, tr, 0, crs.WGS84{})
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	ldr := &raster.MemLoader{Grids: map[string]*raster.Grid{"dem": g}}
	l, err := geolayer.NewSingle("dem", ldr, "dem", 1)
	if err != nil {
		t.Fatalf("NewSingle: %v", err)
	}
	if err := l.Color(0, "transparent", "discrete"); err != nil {
		t.Fatal(err)
	}
	if err := l.Color(42, "#ff0000", "exact"); err != nil {
		t.Fatal(err)
	}
	l.Freeze()
	return l
}

func zonesLayer(t *testing.T) *geolayer.VectorLayer {
	t.Helper()
	l, err := geolayer.NewWKT("zones",
		[]string{"POLYGON((-60 -20,-30 -20,-30 20,-60 20,-60 -20))"},
		[]map[string]any{{"class": "wood"}})
	if err != nil {
		t.Fatalf("NewWKT: %v", err)
	}
	sym := symbols.Symbol{{
		{Symbolizer: "PolygonSymbolizer", Name: "fill", Value: "#00ff00"},
		{Symbolizer: "PolygonSymbolizer", Name: "fill-opacity", Value: 1.0},
	}}
	if err := l.SymbologyAdd("all", sym); err != nil {
		t.Fatalf("SymbologyAdd: %v", err)
	}
	l.Freeze()
	return l
}

func testServer(t *testing.T) (*Server, *countingStore) {
	t.Helper()
	lru, err := tilecache.NewLRU(32, nil)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	store := &countingStore{inner: lru}
	log := zerolog.Nop()
	srv := New(Options{
		Layers: []geolayer.Layer{demLayer(t), zonesLayer(t)},
		Store:  store,
		Logger: &log,
	})
	return srv, store
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_TileEndpoint(t *testing.T) {
	srv, store := testServer(t)
	h := srv.Router()

	rec := get(t, h, "/tiles/dem/0/0/0.png")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %q", ct)
	}
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}
	if img.Bounds().Dx() != 256 || img.Bounds().Dy() != 256 {
		t.Fatalf("tile size %v", img.Bounds())
	}
	r, _, _, a := img.At(128, 128).RGBA()
	if a == 0 || r>>8 != 255 {
		t.Fatalf("center pixel r=%d a=%d want red", r>>8, a>>8)
	}
	if store.sets != 1 {
		t.Fatalf("sets=%d want 1", store.sets)
	}

	// second request comes from cache
	if rec := get(t, h, "/tiles/dem/0/0/0.png"); rec.Code != http.StatusOK {
		t.Fatalf("cached status=%d", rec.Code)
	}
	if store.sets != 1 {
		t.Fatalf("sets=%d after cached request, want 1", store.sets)
	}
}

func TestServer_TileErrors(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Router()

	if rec := get(t, h, "/tiles/nope/0/0/0.png"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown layer status=%d", rec.Code)
	}
	if rec := get(t, h, "/tiles/dem/abc/0/0.png"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad z status=%d", rec.Code)
	}
	if rec := get(t, h, "/tiles/dem/25/0/0.png"); rec.Code != http.StatusBadRequest {
		t.Fatalf("zoom above max status=%d", rec.Code)
	}
}

func TestServer_Identify(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Router()

	var out struct {
		Found bool     `json:"found"`
		Title string   `json:"title"`
		Lines []string `json:"lines"`
	}
	rec := get(t, h, "/identify?layer=dem&lon=0&lat=0&zoom=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !out.Found || out.Title != "dem" || len(out.Lines) != 1 || out.Lines[0] != "42.00" {
		t.Fatalf("identify=%+v", out)
	}

	rec = get(t, h, "/identify?layer=dem&lon=-170&lat=80&zoom=10")
	out.Found = true
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Found {
		t.Fatal("nodata identify reported found")
	}

	if rec := get(t, h, "/identify?layer=dem&lon=x&lat=0&zoom=1"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad lon status=%d", rec.Code)
	}
	if rec := get(t, h, "/identify?layer=nope&lon=0&lat=0&zoom=1"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown layer status=%d", rec.Code)
	}
}

func TestServer_Legend(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Router()

	rec := get(t, h, "/legend/zones")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var items []struct {
		Rule   string `json:"rule"`
		Swatch string `json:"swatch"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(items) != 1 || items[0].Rule != "all" {
		t.Fatalf("items=%+v", items)
	}

	sw := get(t, h, items[0].Swatch)
	if sw.Code != http.StatusOK {
		t.Fatalf("swatch status=%d", sw.Code)
	}
	img, err := png.Decode(bytes.NewReader(sw.Body.Bytes()))
	if err != nil {
		t.Fatalf("swatch decode: %v", err)
	}
	found := false
	for x := 0; x < img.Bounds().Dx() && !found; x++ {
		for y := 0; y < img.Bounds().Dy(); y++ {
			if _, g, _, _ := img.At(x, y).RGBA(); g>>8 == 255 {
				found = true
				break
			}
		}
	}
	if !found {
		t.Fatal("swatch has no green fill pixel")
	}

	if rec := get(t, h, "/legend/dem"); rec.Code != http.StatusNotFound {
		t.Fatalf("raster legend status=%d", rec.Code)
	}
	if rec := get(t, h, "/legend/zones/7.png"); rec.Code != http.StatusNotFound {
		t.Fatalf("out of range swatch status=%d", rec.Code)
	}
}

func TestServer_Invalidate(t *testing.T) {
	srv, store := testServer(t)
	h := srv.Router()

	get(t, h, "/tiles/dem/1/0/0.png")
	get(t, h, "/tiles/dem/1/0/0.png")
	if store.sets != 1 {
		t.Fatalf("sets=%d want 1 before invalidation", store.sets)
	}

	req := httptest.NewRequest(http.MethodPost, "/invalidate/dem", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("invalidate status=%d", rec.Code)
	}
	var out struct {
		Revision uint64 `json:"revision"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Revision != 1 {
		t.Fatalf("revision=%d want 1", out.Revision)
	}

	// old cache entries are unreachable under the new revision
	get(t, h, "/tiles/dem/1/0/0.png")
	if store.sets != 2 {
		t.Fatalf("sets=%d want 2 after invalidation", store.sets)
	}
}

func TestServer_HealthAndLayers(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Router()

	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz %d %q", rec.Code, rec.Body.String())
	}
	rec := get(t, h, "/readyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status=%d", rec.Code)
	}

	rec = get(t, h, "/layers")
	var layers []struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &layers); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(layers) != 2 || layers[0].Name != "dem" || layers[0].Kind != "raster" ||
		layers[1].Name != "zones" || layers[1].Kind != "vector" {
		t.Fatalf("layers=%+v", layers)
	}

	// request id is assigned when the client sends none
	if rec := get(t, h, "/healthz"); rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
}
