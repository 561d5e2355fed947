package kafka

import (
	"strings"
	"time"
)

type Config struct {
	Enabled          bool
	Brokers          []string
	Topic            string
	GroupID          string
	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	InitialOldest    bool
}

// ConfigFrom fills in group defaults around the service-level settings.
// Brokers is a comma separated host list.
func ConfigFrom(enabled bool, brokers, topic, groupID string) Config {
	return Config{
		Enabled:          enabled,
		Brokers:          splitCSV(brokers),
		Topic:            topic,
		GroupID:          groupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		InitialOldest:    false,
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
