// Package invalidation defines the wire format of layer-change events.
// Publishers emit one event when a layer's source data changes; consumers
// bump the layer's cache revision in response.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

type Event struct {
	Version int       `json:"version"`
	Layer   string    `json:"layer"`
	Seq     uint64    `json:"seq"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

// Validate rejects malformed events. Seq is a monotonic per-layer sequence
// number used for replay dedupe.
func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	if strings.TrimSpace(e.Layer) == "" {
		return fmt.Errorf("layer is required")
	}
	if e.Seq == 0 {
		return fmt.Errorf("seq is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}
