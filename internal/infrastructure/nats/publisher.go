// Package nats publishes KeyRhythm attempt events to a NATS subject.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/config"
)

const (
	connectTimeout = 5 * time.Second
	maxReconnects  = -1 // retry forever
	reconnectWait  = 2 * time.Second
)

// Sentinel errors; check with errors.Is.
var (
	ErrDisabled     = errors.New("nats: disabled in configuration")
	ErrNotConnected = errors.New("nats: not connected")
	ErrPublish      = errors.New("nats: publish failed")
)

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
	Drain() error
}

// Publisher sends JSON documents to one subject.
type Publisher struct {
	nc      conn
	subject string
}

// Connect dials cfg.URL. The connection reconnects indefinitely; events
// published while disconnected are buffered by the client library.
func Connect(cfg config.NATSConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Subject returns the subject events are published on.
func (p *Publisher) Subject() string {
	return p.subject
}

// PublishJSON marshals v and publishes it.
func (p *Publisher) PublishJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrPublish, err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

// HealthCheck reports whether the connection is currently up.
func (p *Publisher) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("nats health check: %w", err)
	}
	if p.nc == nil || !p.nc.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}
