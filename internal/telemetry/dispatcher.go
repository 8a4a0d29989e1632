package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/keyrhythm-core/internal/auth"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/logging"
)

// DefaultBufferSize is used when NewDispatcher gets a non-positive size.
const DefaultBufferSize = 256

// sinkTimeout bounds a single sink write.
const sinkTimeout = 5 * time.Second

// Sink receives attempts from the dispatcher goroutine, one at a time.
type Sink interface {
	Name() string
	Write(ctx context.Context, a auth.Attempt) error
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	RegisterOK     uint64 `json:"register_ok"`
	RegisterFailed uint64 `json:"register_failed"`
	LoginOK        uint64 `json:"login_ok"`
	LoginFailed    uint64 `json:"login_failed"`
	Dropped        uint64 `json:"dropped"`
	SinkErrors     uint64 `json:"sink_errors"`
	Queued         int    `json:"queued"`
}

// Dispatcher queues attempts and writes them to its sinks serially.
type Dispatcher struct {
	ch     chan auth.Attempt
	sinks  []Sink
	logger *logging.Logger

	registerOK, registerFailed atomic.Uint64
	loginOK, loginFailed       atomic.Uint64
	dropped, sinkErrors        atomic.Uint64
}

// NewDispatcher creates a dispatcher with room for bufferSize queued
// attempts. Nil sinks are ignored.
func NewDispatcher(bufferSize int, logger *logging.Logger, sinks ...Sink) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	d := &Dispatcher{
		ch:     make(chan auth.Attempt, bufferSize),
		logger: logger.With("component", "telemetry"),
	}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
	return d
}

// Record counts a and enqueues it. It never blocks.
func (d *Dispatcher) Record(a auth.Attempt) {
	d.count(a)

	select {
	case d.ch <- a:
	default:
		d.dropped.Add(1)
		d.logger.Warn("telemetry channel full, dropping attempt",
			"action", a.Action,
			"attempt_id", a.ID,
		)
	}
}

func (d *Dispatcher) count(a auth.Attempt) {
	switch {
	case a.Action == auth.ActionRegister && a.OK:
		d.registerOK.Add(1)
	case a.Action == auth.ActionRegister:
		d.registerFailed.Add(1)
	case a.OK:
		d.loginOK.Add(1)
	default:
		d.loginFailed.Add(1)
	}
}

// Run writes queued attempts until ctx is cancelled, then flushes whatever
// is still queued and returns.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case a := <-d.ch:
			d.deliver(a)
		case <-ctx.Done():
			for {
				select {
				case a := <-d.ch:
					d.deliver(a)
				default:
					return
				}
			}
		}
	}
}

// deliver writes a to every sink. A failing sink does not stop the others.
// Sink writes use a fresh context so the shutdown flush is not cut short.
func (d *Dispatcher) deliver(a auth.Attempt) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		err := s.Write(ctx, a)
		cancel()

		if err != nil {
			d.sinkErrors.Add(1)
			d.logger.Error("telemetry sink write failed",
				"sink", s.Name(),
				"action", a.Action,
				"attempt_id", a.ID,
				"error", err,
			)
		}
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		RegisterOK:     d.registerOK.Load(),
		RegisterFailed: d.registerFailed.Load(),
		LoginOK:        d.loginOK.Load(),
		LoginFailed:    d.loginFailed.Load(),
		Dropped:        d.dropped.Load(),
		SinkErrors:     d.sinkErrors.Load(),
		Queued:         len(d.ch),
	}
}

// Sinks returns the names of the configured sinks.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}
