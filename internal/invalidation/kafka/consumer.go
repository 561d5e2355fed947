// Package kafka consumes layer-change events from a Kafka topic and bumps
// the corresponding tile cache revisions.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/DavideDeMarchi/geolayer/internal/invalidation"
)

// Bumper invalidates one layer's cached tiles. *tilecache.Revisions
// satisfies it.
type Bumper interface {
	Bump(layer string) uint64
}

// Counter receives one increment per applied invalidation.
type Counter interface {
	Invalidated(source string)
}

type Consumer struct {
	cfg    Config
	log    *zerolog.Logger
	revs   Bumper
	count  Counter
	dedupe *seqDedupe
}

func New(cfg Config, log *zerolog.Logger, revs Bumper, count Counter) *Consumer {
	return &Consumer{
		cfg:    cfg,
		log:    log,
		revs:   revs,
		count:  count,
		dedupe: newSeqDedupe(8192),
	}
}

// Start joins the consumer group and processes events until ctx is
// canceled. Consume errors are logged and retried.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		c.log.Info().Msg("invalidation consumer disabled")
		return nil
	}
	if c.revs == nil {
		return errors.New("kafka consumer: revision store is required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.log.Info().
		Strs("brokers", c.cfg.Brokers).
		Str("topic", c.cfg.Topic).
		Str("group", c.cfg.GroupID).
		Msg("kafka invalidation consumer starting")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.log.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne applies a single event. Malformed events are an error so the
// claim surfaces them; stale replays are skipped silently.
func (c *Consumer) ProcessOne(_ context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.Error().Err(err).
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("event decode failed")
		return fmt.Errorf("json decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		c.log.Error().Err(err).Str("layer", ev.Layer).Msg("event rejected")
		return fmt.Errorf("validate: %w", err)
	}
	if !c.dedupe.shouldApply(ev.Layer, ev.Seq) {
		c.log.Debug().Str("layer", ev.Layer).Uint64("seq", ev.Seq).Msg("stale event skipped")
		return nil
	}

	rev := c.revs.Bump(ev.Layer)
	if c.count != nil {
		c.count.Invalidated("kafka")
	}
	c.log.Info().
		Str("layer", ev.Layer).
		Uint64("seq", ev.Seq).
		Uint64("revision", rev).
		Str("source", ev.Source).
		Msg("layer invalidated")
	return nil
}
