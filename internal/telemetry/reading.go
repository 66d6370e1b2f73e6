// Reading types shared by the store, sync engine, and remote writers.
package telemetry

import "time"

// Payload maps a producer name to that producer's reported values. The value
// shape is deliberately schemaless: producers report arbitrary named fields,
// and a failed producer contributes an error entry in its slot instead of
// aborting the whole reading.
type Payload map[string]map[string]any

// ErrorValues builds the payload slot for a producer that failed.
func ErrorValues(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

// Reading is one measurement cycle's combined result.
//
// ID is assigned by the store at insert time and increases monotonically, so
// id order is a valid proxy for insertion order. Synced transitions false to
// true exactly once and is never reset.
type Reading struct {
	ID             int64     `json:"id,omitempty"`
	DeviceID       string    `json:"device_id"`
	TimestampUTC   time.Time `json:"ts_utc"`
	TimestampLocal time.Time `json:"ts_local"`
	Payload        Payload   `json:"payload"`
	Synced         bool      `json:"-"`
}
