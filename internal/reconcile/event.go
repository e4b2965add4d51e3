// Package reconcile folds the backend's event stream into derived dashboard state:
// a bounded message log, global and per-job log buffers, and per-job step statuses.
package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Event names carried in the "event" discriminator.
const (
	EventPing               = "ping"
	EventPong               = "pong"
	EventLog                = "log"
	EventIngestLog          = "ingest_log"
	EventIngestStep         = "ingest_step"
	EventJobUpdate          = "job_update"
	EventJobsSnapshot       = "jobs_snapshot"
	EventIngestErrorSummary = "ingest_error_summary"
	EventPipelineFailed     = "pipeline_failed"
	EventGraphUpdate        = "graph_update"
	EventRAGProcessing      = "rag_processing"
	EventRAGDone            = "rag_done"
)

// ErrMalformedEvent is returned for payloads that are not JSON objects
// with a string "event" field.
var ErrMalformedEvent = errors.New("malformed event")

// RawEvent is an untyped stream message. Fields holds every field of the
// message, including event, job_id and ts; Name, JobID and TS are decoded
// views of those three for convenience.
type RawEvent struct {
	Name   string
	JobID  string
	TS     string
	Fields map[string]json.RawMessage
}

// ParseEvent decodes one stream frame. A null job_id is treated as absent and
// a numeric ts is kept as its decimal text.
func ParseEvent(data []byte) (RawEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return RawEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if fields == nil {
		return RawEvent{}, fmt.Errorf("%w: not an object", ErrMalformedEvent)
	}

	var name string
	raw, ok := fields["event"]
	if !ok || json.Unmarshal(raw, &name) != nil || name == "" {
		return RawEvent{}, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}

	ev := RawEvent{Name: name, Fields: fields}
	ev.JobID, _ = scalarText(fields["job_id"])
	ev.TS, _ = scalarText(fields["ts"])
	return ev, nil
}

// NewEvent builds an event from plain Go values. Empty jobID is omitted.
func NewEvent(name, jobID string, fields map[string]any) RawEvent {
	ev := RawEvent{
		Name:   name,
		JobID:  jobID,
		Fields: make(map[string]json.RawMessage, len(fields)+2),
	}
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		ev.Fields[k] = b
	}
	ev.Fields["event"] = mustMarshal(name)
	if jobID != "" {
		ev.Fields["job_id"] = mustMarshal(jobID)
	}
	ev.TS, _ = scalarText(ev.Fields["ts"])
	return ev
}

// WithTS returns a copy of the event stamped with ts.
func (e RawEvent) WithTS(ts string) RawEvent {
	fields := make(map[string]json.RawMessage, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields["ts"] = mustMarshal(ts)
	e.Fields = fields
	e.TS = ts
	return e
}

// Has reports whether key is present and not null.
func (e RawEvent) Has(key string) bool {
	raw, ok := e.Fields[key]
	return ok && !isNull(raw)
}

// String returns a string field. Numbers are returned as their decimal text.
func (e RawEvent) String(key string) (string, bool) {
	return scalarText(e.Fields[key])
}

// Int returns a numeric field rounded to the nearest integer.
func (e RawEvent) Int(key string) (int, bool) {
	raw, ok := e.Fields[key]
	if !ok || isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return int(math.Round(f)), true
}

// Decode unmarshals a field into v. A missing or null field leaves v untouched.
func (e RawEvent) Decode(key string, v any) error {
	raw, ok := e.Fields[key]
	if !ok || isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s.%s: %w", e.Name, key, err)
	}
	return nil
}

// MarshalJSON encodes the event with all of its fields.
func (e RawEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Fields)
}

func scalarText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func mustMarshal(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
