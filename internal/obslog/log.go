// Package obslog is the ambient structured logger: one JSON object per
// line to stdout, in the same shape the teacher's own observability
// package uses for every event it logs. It carries no dependency on any
// logging library — this corpus never reaches for one either.
package obslog

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

// Event writes one structured log line: a timestamp, level, event name,
// and arbitrary extra fields (e.g. session_id, error).
func Event(level, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"event": event,
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			payload[k] = err.Error()
			continue
		}
		payload[k] = v
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Printf(`{"level":"error","event":"log_marshal_failed","error":%q}`, err.Error())
		return
	}
	logger.Print(string(raw))
}

// Debug logs at debug level; handshake failures and dropped packets
// (§7: HandshakeError, PolicyDrop) are logged here, never surfaced to
// the client or to other connections.
func Debug(event string, fields map[string]any) { Event("debug", event, fields) }

// Info logs at info level: startup, shutdown, accepted/closed connections.
func Info(event string, fields map[string]any) { Event("info", event, fields) }

// Error logs at error level: failures an operator should see, such as a
// failed accept, an invalid configuration value, or a problem during
// shutdown.
func Error(event string, fields map[string]any) { Event("error", event, fields) }
