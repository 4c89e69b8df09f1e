package metering

import "time"

// Event is one recorded tool invocation.
type Event struct {
	TenantID       string
	Tool           string
	Operation      string
	Outcome        string // "success" or a failure kind
	UpstreamStatus int    // last upstream HTTP status, 0 if no call was made
	Attempts       int    // upstream attempts including retries
	LatencyMs      int64
	Timestamp      time.Time
}
