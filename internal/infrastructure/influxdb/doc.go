// Package influxdb records KeyRhythm attempt metrics in InfluxDB 2.x.
//
// Each attempt becomes one auth_attempts point tagged with action and
// outcome, carrying ok, keystrokes, deviation_index and max_deviation
// fields. Writes are batched per the influxdb section of config.yaml
// (batch_size, flush_interval) and never block the caller.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteAttempt(attempt)
package influxdb
