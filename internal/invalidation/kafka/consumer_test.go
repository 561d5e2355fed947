package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/DavideDeMarchi/geolayer/internal/invalidation"
	"github.com/DavideDeMarchi/geolayer/internal/tilecache"
)

type countingBumper struct {
	revs  tilecache.Revisions
	bumps int
}

func (b *countingBumper) Bump(layer string) uint64 {
	b.bumps++
	return b.revs.Bump(layer)
}

type fakeCounter struct{ sources []string }

func (c *fakeCounter) Invalidated(source string) { c.sources = append(c.sources, source) }

func msgFor(t *testing.T, ev invalidation.Event) *sarama.ConsumerMessage {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: "layer-invalidation", Value: data}
}

func testConsumer(b *countingBumper, c Counter) *Consumer {
	log := zerolog.Nop()
	return New(ConfigFrom(true, "localhost:9092", "layer-invalidation", "tileserver"), &log, b, c)
}

func TestConsumer_ProcessOne(t *testing.T) {
	b := &countingBumper{}
	fc := &fakeCounter{}
	c := testConsumer(b, fc)
	ctx := context.Background()

	ev := invalidation.Event{Version: 1, Layer: "dem", Seq: 1, TS: time.Now()}
	if err := c.ProcessOne(ctx, msgFor(t, ev)); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if b.bumps != 1 || b.revs.Current("dem") != 1 {
		t.Fatalf("bumps=%d rev=%d", b.bumps, b.revs.Current("dem"))
	}
	if len(fc.sources) != 1 || fc.sources[0] != "kafka" {
		t.Fatalf("counter=%v", fc.sources)
	}

	// replaying the same seq must not bump again
	if err := c.ProcessOne(ctx, msgFor(t, ev)); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if b.bumps != 1 {
		t.Fatalf("bumps=%d after replay, want 1", b.bumps)
	}

	// a newer seq applies
	ev.Seq = 2
	if err := c.ProcessOne(ctx, msgFor(t, ev)); err != nil {
		t.Fatalf("newer seq: %v", err)
	}
	if b.bumps != 2 {
		t.Fatalf("bumps=%d want 2", b.bumps)
	}

	// another layer has an independent sequence
	if err := c.ProcessOne(ctx, msgFor(t, invalidation.Event{Version: 1, Layer: "zones", Seq: 1, TS: time.Now()})); err != nil {
		t.Fatalf("other layer: %v", err)
	}
	if b.revs.Current("zones") != 1 {
		t.Fatalf("zones rev=%d", b.revs.Current("zones"))
	}
}

func TestConsumer_ProcessOneRejects(t *testing.T) {
	b := &countingBumper{}
	c := testConsumer(b, nil)
	ctx := context.Background()

	bad := &sarama.ConsumerMessage{Topic: "layer-invalidation", Value: []byte("{not json")}
	if err := c.ProcessOne(ctx, bad); err == nil {
		t.Fatal("malformed json accepted")
	}
	if err := c.ProcessOne(ctx, msgFor(t, invalidation.Event{Version: 1, Layer: "", Seq: 1, TS: time.Now()})); err == nil {
		t.Fatal("invalid event accepted")
	}
	if b.bumps != 0 {
		t.Fatalf("bumps=%d for rejected events", b.bumps)
	}
}

func TestSeqDedupe(t *testing.T) {
	d := newSeqDedupe(4)
	if !d.shouldApply("a", 5) {
		t.Fatal("first seq rejected")
	}
	if d.shouldApply("a", 5) || d.shouldApply("a", 4) {
		t.Fatal("stale seq applied")
	}
	if !d.shouldApply("a", 6) {
		t.Fatal("newer seq rejected")
	}
	if !d.shouldApply("b", 1) {
		t.Fatal("independent layer rejected")
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(true, " b1:9092 , b2:9092,", "t", "g")
	if len(cfg.Brokers) != 2 || cfg.Brokers[0] != "b1:9092" || cfg.Brokers[1] != "b2:9092" {
		t.Fatalf("brokers=%v", cfg.Brokers)
	}
	if cfg.SessionTimeout != 30*time.Second || cfg.Heartbeat != 3*time.Second {
		t.Fatalf("timeouts=%v %v", cfg.SessionTimeout, cfg.Heartbeat)
	}
}
