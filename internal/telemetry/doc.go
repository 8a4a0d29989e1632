// Package telemetry fans attempt records out to the audit table and the
// optional event sinks (MQTT, NATS, InfluxDB).
//
// Dispatcher implements auth.Recorder. Record never blocks the request
// path: attempts go onto a bounded channel and a single goroutine writes
// them to every sink in turn. When the channel is full the attempt is
// dropped and counted.
package telemetry
