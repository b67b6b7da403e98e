package schema

// SpawnStatus is the lifecycle status of a spawned sub-agent as reported by the backend.
type SpawnStatus string

const (
	SpawnPendingInit SpawnStatus = "pending_init"
	SpawnRunning     SpawnStatus = "running"
	SpawnDone        SpawnStatus = "done"
	SpawnError       SpawnStatus = "error"
)

// SpawnedAgent is one sub-agent within a spawn record. Zero-valued strings and nil
// pointers mean "not reported" and never overwrite known values when merging.
type SpawnedAgent struct {
	CallID    CallID      `json:"callId"`
	AgentID   AgentID     `json:"agentId"`
	Status    SpawnStatus `json:"status,omitempty"`
	Progress  *int        `json:"progress,omitempty"`
	ElapsedMs *int64      `json:"elapsedMs,omitempty"`
	Prompt    string      `json:"prompt,omitempty"`
	Ownership string      `json:"ownership,omitempty"`
}

// SpawnKey identifies a sub-agent entry within a spawn record.
type SpawnKey struct {
	CallID  CallID
	AgentID AgentID
}

// Key returns the merge identity of the agent.
func (a SpawnedAgent) Key() SpawnKey {
	return SpawnKey{CallID: a.CallID, AgentID: a.AgentID}
}

// WaitingDescriptor reports that the parent agent is blocked on the listed receivers.
type WaitingDescriptor struct {
	CallID    CallID    `json:"callId"`
	Receivers []AgentID `json:"receivers,omitempty"`
}

// SpawnRecord aggregates the sub-agents launched by one or more adjacent spawn notices.
type SpawnRecord struct {
	Agents  []SpawnedAgent
	Waiting *WaitingDescriptor
}

// Clone returns a deep copy of the record.
func (r SpawnRecord) Clone() SpawnRecord {
	out := SpawnRecord{}
	if len(r.Agents) > 0 {
		out.Agents = make([]SpawnedAgent, len(r.Agents))
		for i, agent := range r.Agents {
			out.Agents[i] = agent.Clone()
		}
	}
	if r.Waiting != nil {
		waiting := *r.Waiting
		waiting.Receivers = append([]AgentID(nil), r.Waiting.Receivers...)
		out.Waiting = &waiting
	}
	return out
}

// Clone returns a deep copy of the agent.
func (a SpawnedAgent) Clone() SpawnedAgent {
	out := a
	if a.Progress != nil {
		progress := *a.Progress
		out.Progress = &progress
	}
	if a.ElapsedMs != nil {
		elapsed := *a.ElapsedMs
		out.ElapsedMs = &elapsed
	}
	return out
}
