package core

import "pkt.systems/cxconsole/schema"

// MergeSpawn folds incoming into previous. Agents are keyed by (callId, agentId);
// for duplicate keys every field reported by incoming wins and unreported fields keep
// their previous value. Waiting is replaced only when incoming carries one.
// Status values are taken verbatim; the backend owns the transition rules.
func MergeSpawn(previous, incoming schema.SpawnRecord) schema.SpawnRecord {
	out := previous.Clone()
	index := make(map[schema.SpawnKey]int, len(out.Agents))
	for i, agent := range out.Agents {
		index[agent.Key()] = i
	}
	for _, agent := range incoming.Agents {
		key := agent.Key()
		if i, ok := index[key]; ok {
			out.Agents[i] = mergeAgent(out.Agents[i], agent)
			continue
		}
		index[key] = len(out.Agents)
		out.Agents = append(out.Agents, agent.Clone())
	}
	if incoming.Waiting != nil {
		out.Waiting = incoming.Clone().Waiting
	}
	return out
}

func mergeAgent(prev, next schema.SpawnedAgent) schema.SpawnedAgent {
	if next.Status != "" {
		prev.Status = next.Status
	}
	if next.Progress != nil {
		progress := *next.Progress
		prev.Progress = &progress
	}
	if next.ElapsedMs != nil {
		elapsed := *next.ElapsedMs
		prev.ElapsedMs = &elapsed
	}
	if next.Prompt != "" {
		prev.Prompt = next.Prompt
	}
	if next.Ownership != "" {
		prev.Ownership = next.Ownership
	}
	return prev
}
