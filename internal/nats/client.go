package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ieltswriter/ieltswriter/internal/config"
)

const (
	// eventRetention bounds how long graded-attempt events stay replayable.
	eventRetention = 72 * time.Hour
	// dedupeWindow must cover the longest redelivery backoff so a republished
	// attempt with the same message id is dropped by the server.
	dedupeWindow = 10 * time.Minute
)

// Client holds the connection used for stats events.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewClient connects and makes sure the events stream exists. Reconnects are
// unbounded. Attempts published while disconnected are lost to stats until the
// user recalculates from history.
func NewClient(ctx context.Context, cfg config.NATSConfig) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("ieltswriter-api"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats: disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats: reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("opening jetstream: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamEvents,
		Description: "graded writing attempts",
		Subjects:    []string{SubjectEventsPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      eventRetention,
		Duplicates:  dedupeWindow,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensuring stream %s: %w", StreamEvents, err)
	}

	slog.Info("nats: connected", "url", cfg.URL, "stream", StreamEvents)
	return &Client{conn: nc, js: js}, nil
}

func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Healthy reports whether the connection is currently up.
func (c *Client) Healthy() bool {
	return c.conn.IsConnected()
}

// Close drains pending publishes before closing.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		slog.Warn("nats: drain failed", "error", err)
	}
}
