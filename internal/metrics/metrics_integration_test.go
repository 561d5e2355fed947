package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	return rr.Body.String()
}

func Test_DomainMetrics_Smoke(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test"}})

	p.TilesRendered.WithLabelValues("roads", "vector").Inc()
	p.RenderSeconds.WithLabelValues("roads").Observe(0.012)
	p.Identifies.WithLabelValues("roads", "hit").Inc()
	p.Identifies.WithLabelValues("roads", "miss").Inc()
	p.Invalidations.WithLabelValues("kafka").Inc()
	p.CacheHit()
	p.CacheHit()
	p.CacheMiss()

	body := scrape(t, p)
	mustContain := []string{
		`geolayer_tiles_rendered_total{kind="vector",layer="roads"} 1`,
		`geolayer_tile_render_seconds_bucket`,
		`geolayer_identify_requests_total{layer="roads",outcome="hit"} 1`,
		`geolayer_identify_requests_total{layer="roads",outcome="miss"} 1`,
		`geolayer_invalidations_total{source="kafka"} 1`,
		`geolayer_tile_cache_hits_total 2`,
		`geolayer_tile_cache_misses_total 1`,
	}
	for _, s := range mustContain {
		if !strings.Contains(body, s) {
			t.Fatalf("expected metrics to contain %q;\n---\n%s", s, body)
		}
	}
}
