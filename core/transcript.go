package core

import (
	"fmt"
	"strings"

	"pkt.systems/cxconsole/schema"
)

// transcript is the visible message list.
type transcript struct {
	entries []schema.Message
	nextID  uint64
}

func (t *transcript) Append(msg schema.Message) schema.Message {
	t.nextID++
	msg.ID = t.nextID
	t.entries = append(t.entries, msg)
	return msg
}

// Last returns the most recent entry.
func (t *transcript) Last() (*schema.Message, bool) {
	if len(t.entries) == 0 {
		return nil, false
	}
	return &t.entries[len(t.entries)-1], true
}

func (t *transcript) Messages() []schema.Message {
	out := make([]schema.Message, len(t.entries))
	for i, msg := range t.entries {
		out[i] = msg.Clone()
	}
	return out
}

// spawnSummary renders the one-line text of a spawn entry.
func spawnSummary(record schema.SpawnRecord) string {
	counts := map[schema.SpawnStatus]int{}
	for _, agent := range record.Agents {
		counts[agent.Status]++
	}
	parts := []string{fmt.Sprintf("%d agent(s)", len(record.Agents))}
	for _, status := range []schema.SpawnStatus{schema.SpawnPendingInit, schema.SpawnRunning, schema.SpawnDone, schema.SpawnError} {
		if counts[status] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[status], status))
		}
	}
	if record.Waiting != nil && len(record.Waiting.Receivers) > 0 {
		parts = append(parts, fmt.Sprintf("waiting on %d", len(record.Waiting.Receivers)))
	}
	return "spawned " + strings.Join(parts, ", ")
}
