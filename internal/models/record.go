package models

import (
	"fmt"
	"strconv"
	"strings"
)

// PolicyColumn is the output name of the exploded trigger column.
const PolicyColumn = "policy"

// DefaultTimeColumn holds the event time in epoch microseconds.
const DefaultTimeColumn = "start_time"

// TriggerRecord is one (event, matched policy) row of an export.
// Fields follow the owning Table's header; the full tuple is its identity.
type TriggerRecord struct {
	EventMicros int64
	Fields      []string
}

// Key returns a string identifying the record by its full tuple.
func (r TriggerRecord) Key() string {
	return strings.Join(r.Fields, "\x1f")
}

// EpochSeconds returns the event time truncated to whole seconds.
func (r TriggerRecord) EpochSeconds() int64 {
	return r.EventMicros / 1_000_000
}

// Table is an ordered set of records sharing one header.
type Table struct {
	Header    []string
	TimeIndex int
	Records   []TriggerRecord
}

// NewTable creates an empty table whose event time lives in timeColumn.
func NewTable(header []string, timeColumn string) (*Table, error) {
	idx := indexOf(header, timeColumn)
	if idx < 0 {
		return nil, fmt.Errorf("time column %q not in header %v", timeColumn, header)
	}
	return &Table{Header: header, TimeIndex: idx}, nil
}

// Append parses the time column of fields and adds the row.
func (t *Table) Append(fields []string) error {
	if len(fields) != len(t.Header) {
		return fmt.Errorf("row has %d fields, header has %d", len(fields), len(t.Header))
	}
	raw := strings.TrimSpace(fields[t.TimeIndex])
	micros, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s %q: %w", t.Header[t.TimeIndex], raw, err)
	}
	t.Records = append(t.Records, TriggerRecord{EventMicros: micros, Fields: fields})
	return nil
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Records)
}

// MaxEventMicros returns the newest event time, or false for an empty table.
func (t *Table) MaxEventMicros() (int64, bool) {
	if len(t.Records) == 0 {
		return 0, false
	}
	maxTS := t.Records[0].EventMicros
	for _, r := range t.Records[1:] {
		if r.EventMicros > maxTS {
			maxTS = r.EventMicros
		}
	}
	return maxTS, true
}

// Reorder returns records laid out in the given header's column order.
// Columns missing from t are emitted as empty strings.
func (t *Table) Reorder(header []string) []TriggerRecord {
	if equalHeaders(t.Header, header) {
		return t.Records
	}
	positions := make([]int, len(header))
	for i, name := range header {
		positions[i] = indexOf(t.Header, name)
	}
	out := make([]TriggerRecord, 0, len(t.Records))
	for _, r := range t.Records {
		fields := make([]string, len(header))
		for i, pos := range positions {
			if pos >= 0 {
				fields[i] = r.Fields[pos]
			}
		}
		out = append(out, TriggerRecord{EventMicros: r.EventMicros, Fields: fields})
	}
	return out
}

// MergeResult is the ordered, duplicate-free output of a run.
type MergeResult struct {
	Header   []string
	Records  []TriggerRecord
	Kept     int
	Fresh    int
	Rejected int
}

// Table converts the result into a table for writing.
func (m MergeResult) Table(timeColumn string) *Table {
	return &Table{Header: m.Header, TimeIndex: indexOf(m.Header, timeColumn), Records: m.Records}
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func equalHeaders(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
