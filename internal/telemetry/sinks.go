package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/keyrhythm-core/internal/audit"
	"github.com/nerrad567/keyrhythm-core/internal/auth"
)

// Event is the document published to brokers for every attempt. Client
// address and user agent stay in the audit table only.
type Event struct {
	ID             string      `json:"id"`
	Instance       string      `json:"instance"`
	Action         auth.Action `json:"action"`
	Username       string      `json:"username"`
	OK             bool        `json:"ok"`
	Message        string      `json:"message"`
	Keystrokes     int         `json:"keystrokes"`
	DeviationIndex int         `json:"deviation_index"`
	MaxDeviation   float64     `json:"max_deviation"`
	Timestamp      time.Time   `json:"timestamp"`
}

// NewEvent builds the broker document for a.
func NewEvent(instance string, a auth.Attempt) Event {
	return Event{
		ID:             a.ID,
		Instance:       instance,
		Action:         a.Action,
		Username:       a.Username,
		OK:             a.OK,
		Message:        a.Message,
		Keystrokes:     a.Keystrokes,
		DeviationIndex: a.DeviationIndex,
		MaxDeviation:   a.MaxDeviation,
		Timestamp:      a.Timestamp.UTC(),
	}
}

// AuditSink stores attempts in the audit table.
type AuditSink struct {
	Repo audit.Repository
}

// Name implements Sink.
func (AuditSink) Name() string { return "audit" }

// Write implements Sink.
func (s AuditSink) Write(ctx context.Context, a auth.Attempt) error {
	return s.Repo.Create(ctx, &a)
}

// TopicPublisher is the part of *mqtt.Client the MQTT sink uses.
type TopicPublisher interface {
	PublishJSON(topic string, v any) error
}

// MQTTSink publishes each attempt on <prefix>/auth/<action>.
type MQTTSink struct {
	Client   TopicPublisher
	Topic    func(action string) string
	Instance string
}

// Name implements Sink.
func (MQTTSink) Name() string { return "mqtt" }

// Write implements Sink.
func (s MQTTSink) Write(_ context.Context, a auth.Attempt) error {
	return s.Client.PublishJSON(s.Topic(string(a.Action)), NewEvent(s.Instance, a))
}

// SubjectPublisher is the part of *nats.Publisher the NATS sink uses.
type SubjectPublisher interface {
	PublishJSON(v any) error
}

// NATSSink publishes each attempt on the configured subject.
type NATSSink struct {
	Publisher SubjectPublisher
	Instance  string
}

// Name implements Sink.
func (NATSSink) Name() string { return "nats" }

// Write implements Sink.
func (s NATSSink) Write(_ context.Context, a auth.Attempt) error {
	return s.Publisher.PublishJSON(NewEvent(s.Instance, a))
}

// PointWriter is the part of *influxdb.Client the metrics sink uses.
type PointWriter interface {
	WriteAttempt(a auth.Attempt)
}

// InfluxSink queues one point per attempt. Write errors surface through
// the InfluxDB client's error callback, not here.
type InfluxSink struct {
	Writer PointWriter
}

// Name implements Sink.
func (InfluxSink) Name() string { return "influxdb" }

// Write implements Sink.
func (s InfluxSink) Write(_ context.Context, a auth.Attempt) error {
	s.Writer.WriteAttempt(a)
	return nil
}
