// Package health serves liveness and readiness probes.
package health

import (
	"encoding/json"
	"net/http"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Readiness reports ready once the layer catalog is loaded. The callback
// returns the number of servable layers, negative while loading.
func Readiness(layerCount func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status string `json:"status"`
			Layers int    `json:"layers,omitempty"`
		}
		n := layerCount()
		out := resp{Status: "not_ready"}
		w.Header().Set("Content-Type", "application/json")
		if n >= 0 {
			out.Status = "ready"
			out.Layers = n
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
