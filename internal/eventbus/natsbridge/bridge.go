// Package natsbridge forwards in-process bus events to NATS subjects.
//
// Each event is published as JSON on <subject>.<event type>, for example
// threadq.publish.failed. With JetStream enabled the publish waits for the
// stream ack; a stream covering the subjects must already exist.
package natsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"threadq/internal/eventbus"
	logx "threadq/pkg/logx"
)

const (
	DefaultSubject = "threadq"
	publishTimeout = 5 * time.Second
)

type Config struct {
	URL       string
	Subject   string
	JetStream bool
	// Types limits forwarding to these event types. Empty forwards everything.
	Types []string
}

// Envelope is the wire shape of a forwarded event.
type Envelope struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

type Bridge struct {
	cfg   Config
	nc    *nats.Conn
	js    jetstream.JetStream
	log   logx.Logger
	types map[string]bool
}

// Connect dials NATS. The connection reconnects forever in the background.
func Connect(cfg Config, log logx.Logger) (*Bridge, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("natsbridge: url is required")
	}
	if strings.TrimSpace(cfg.Subject) == "" {
		cfg.Subject = DefaultSubject
	}
	log = log.With(logx.String("comp", "natsbridge"))

	nc, err := nats.Connect(cfg.URL,
		nats.Name("threadq"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logx.Err(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", logx.String("url", c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	b := &Bridge{cfg: cfg, nc: nc, log: log}
	if cfg.JetStream {
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create jetstream: %w", err)
		}
		b.js = js
	}
	if len(cfg.Types) > 0 {
		b.types = make(map[string]bool, len(cfg.Types))
		for _, t := range cfg.Types {
			b.types[strings.TrimSpace(t)] = true
		}
	}
	log.Info("connected to NATS", logx.String("url", nc.ConnectedUrlRedacted()), logx.Bool("jetstream", cfg.JetStream))
	return b, nil
}

// Subject returns the subject an event type is published on.
func (b *Bridge) Subject(eventType string) string {
	return b.cfg.Subject + "." + eventType
}

// Run forwards bus events until ctx ends.
func (b *Bridge) Run(ctx context.Context, bus eventbus.Bus) error {
	events, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if b.types != nil && !b.types[e.Type] {
				continue
			}
			if err := b.Forward(ctx, e); err != nil {
				b.log.Warn("event forward failed", logx.String("type", e.Type), logx.Err(err))
			}
		}
	}
}

// Forward publishes one event.
func (b *Bridge) Forward(ctx context.Context, e eventbus.Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	subject := b.Subject(e.Type)
	if b.js != nil {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if _, err := b.js.Publish(pctx, subject, data); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", subject, err)
		}
		return nil
	}
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Encode renders e as the JSON envelope.
func Encode(e eventbus.Event) ([]byte, error) {
	data, err := json.Marshal(Envelope{Type: e.Type, Time: e.Time, Data: e.Data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", e.Type, err)
	}
	return data, nil
}

// Close flushes pending publishes and closes the connection.
func (b *Bridge) Close() error {
	if b == nil || b.nc == nil {
		return nil
	}
	return b.nc.Drain()
}
