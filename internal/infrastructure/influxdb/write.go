package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/keyrhythm-core/internal/auth"
)

// MeasurementAttempts holds one point per register or login attempt.
const MeasurementAttempts = "auth_attempts"

// WriteAttempt queues a point for a. Usernames are never tagged
// (unbounded cardinality).
func (c *Client) WriteAttempt(a auth.Attempt) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(attemptPoint(a))
}

func attemptPoint(a auth.Attempt) *write.Point {
	outcome := "failure"
	if a.OK {
		outcome = "success"
	}

	fields := map[string]any{
		"ok":              a.OK,
		"keystrokes":      a.Keystrokes,
		"deviation_index": a.DeviationIndex,
	}
	if a.DeviationIndex >= 0 || a.MaxDeviation > 0 {
		fields["max_deviation"] = a.MaxDeviation
	}

	return write.NewPoint(MeasurementAttempts,
		map[string]string{
			"action":  string(a.Action),
			"outcome": outcome,
		},
		fields,
		a.Timestamp,
	)
}
