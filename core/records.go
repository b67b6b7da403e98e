package core

import (
	"pkt.systems/cxconsole/schema"
)

// sessionRecords is the most-recent-first list of started sessions.
// At most one record is active.
type sessionRecords struct {
	entries []schema.SessionRecord
	max     int
}

func newSessionRecords(max int) *sessionRecords {
	if max <= 0 {
		max = schema.DefaultMaxSessionRecords
	}
	return &sessionRecords{max: max}
}

func newSessionRecordsFromPersisted(entries []schema.SessionRecord, max int) *sessionRecords {
	r := newSessionRecords(max)
	if len(entries) > r.max {
		entries = entries[:r.max]
	}
	r.entries = append([]schema.SessionRecord(nil), entries...)
	// A persisted active flag belongs to a previous process.
	for i := range r.entries {
		r.entries[i].Active = false
	}
	return r
}

// Activate inserts or updates the record for the session, moves it to the front
// and marks it as the only active record.
func (r *sessionRecords) Activate(record schema.SessionRecord) {
	out := make([]schema.SessionRecord, 0, len(r.entries)+1)
	record.Active = true
	out = append(out, record)
	for _, entry := range r.entries {
		if entry.SessionID == record.SessionID {
			continue
		}
		entry.Active = false
		out = append(out, entry)
	}
	if len(out) > r.max {
		out = out[:r.max]
	}
	r.entries = out
}

// Deactivate clears the active flag of the session's record.
func (r *sessionRecords) Deactivate(sessionID schema.SessionID) bool {
	changed := false
	for i := range r.entries {
		if r.entries[i].SessionID == sessionID && r.entries[i].Active {
			r.entries[i].Active = false
			changed = true
		}
	}
	return changed
}

func (r *sessionRecords) Entries() []schema.SessionRecord {
	if r == nil {
		return nil
	}
	return append([]schema.SessionRecord(nil), r.entries...)
}
