package mockbackend

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// step is one scripted push. Events are wrapped in an envelope with the next seq;
// everything else is published as-is on the session topic.
type step struct {
	event     map[string]any
	stdout    string
	stderr    string
	exitCode  *int
	repeatSeq bool
}

type scenario struct {
	name  string
	steps func(seed uint64, prompt string) []step
}

func buildScenarios() []scenario {
	return []scenario{
		{name: "summary", steps: scenarioSummary},
		{name: "spawn", steps: scenarioSpawn},
		{name: "approval", steps: scenarioApproval},
		{name: "input", steps: scenarioInput},
		{name: "duplicate", steps: scenarioDuplicate},
		{name: "failure", steps: scenarioFailure},
	}
}

// ScenarioNames lists the scripted scenarios in selection order.
func ScenarioNames() []string {
	scenarios := buildScenarios()
	names := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		names = append(names, s.name)
	}
	return names
}

func pickScenario(name string, seed uint64) (scenario, error) {
	scenarios := buildScenarios()
	if name != "" {
		for _, s := range scenarios {
			if s.name == name {
				return s, nil
			}
		}
		return scenario{}, fmt.Errorf("unknown scenario: %s", name)
	}
	return scenarios[int(seed%uint64(len(scenarios)))], nil
}

func hashSeed(parts ...string) uint64 {
	hasher := fnv.New64a()
	for _, part := range parts {
		_, _ = hasher.Write([]byte(part))
	}
	return hasher.Sum64()
}

func mockAgentMessage(seed uint64, prompt string) string {
	openers := []string{
		"Here is what I found.",
		"Quick summary of the workspace.",
		"Done looking around.",
	}
	opener := openers[int(seed%uint64(len(openers)))]
	if strings.TrimSpace(prompt) == "" {
		return opener
	}
	return opener + " You asked about: " + prompt
}

func ev(fields map[string]any) step {
	return step{event: fields}
}

func splitChunks(text string, n int) []string {
	if n <= 1 || len(text) <= n {
		return []string{text}
	}
	size := (len(text) + n - 1) / n
	var out []string
	for len(text) > 0 {
		cut := min(size, len(text))
		out = append(out, text[:cut])
		text = text[cut:]
	}
	return out
}

func scenarioSummary(seed uint64, prompt string) []step {
	message := mockAgentMessage(seed, prompt)
	steps := []step{
		ev(map[string]any{"type": "turn_started", "turnId": "turn_1"}),
		ev(map[string]any{"type": "agent_reasoning_delta", "itemId": "item_0", "delta": "Summarizing "}),
		ev(map[string]any{"type": "agent_reasoning_delta", "itemId": "item_0", "delta": "workspace state."}),
		ev(map[string]any{"type": "agent_reasoning", "text": "Summarizing workspace state."}),
	}
	for _, chunk := range splitChunks(message, 3) {
		steps = append(steps, ev(map[string]any{"type": "agent_message_delta", "itemId": "item_1", "delta": chunk}))
	}
	steps = append(steps,
		ev(map[string]any{"type": "agent_message", "itemId": "item_1"}),
		ev(map[string]any{
			"type":              "token_count",
			"inputTokens":       len(prompt) + 12,
			"cachedInputTokens": len(prompt) / 3,
			"outputTokens":      int(20 + seed%50),
			"contextWindow":     272000,
		}),
		ev(map[string]any{"type": "turn_complete", "turnId": "turn_1"}),
	)
	return steps
}

func scenarioSpawn(seed uint64, prompt string) []step {
	return []step{
		ev(map[string]any{"type": "turn_started", "turnId": "turn_1"}),
		ev(map[string]any{"type": "agent_spawn", "agents": []map[string]any{
			{"callId": "call_1", "agentId": "agent_a", "status": "pending_init", "prompt": "Inspect repo layout"},
			{"callId": "call_1", "agentId": "agent_b", "status": "pending_init", "prompt": "Run tests"},
		}}),
		ev(map[string]any{"type": "agent_spawn", "agents": []map[string]any{
			{"callId": "call_1", "agentId": "agent_a", "status": "running", "progress": 40},
		}, "waiting": map[string]any{"callId": "call_2", "receivers": []string{"agent_a", "agent_b"}}}),
		ev(map[string]any{"type": "agent_spawn", "agents": []map[string]any{
			{"callId": "call_1", "agentId": "agent_a", "status": "done", "progress": 100, "elapsedMs": 1800},
			{"callId": "call_1", "agentId": "agent_b", "status": "done", "elapsedMs": 2400},
		}, "waiting": map[string]any{"callId": "call_2"}}),
		ev(map[string]any{"type": "agent_message", "itemId": "item_1", "message": "Both agents finished. " + mockAgentMessage(seed, prompt)}),
		ev(map[string]any{"type": "turn_complete", "turnId": "turn_1"}),
	}
}

func scenarioApproval(_ uint64, _ string) []step {
	return []step{
		ev(map[string]any{"type": "turn_started", "turnId": "turn_1"}),
		ev(map[string]any{
			"type":     "exec_approval_request",
			"actionId": "approve_1",
			"reason":   "List files in the workspace",
			"cwd":      "/workspace",
			"command":  []string{"bash", "-lc", "ls"},
		}),
		ev(map[string]any{
			"type":     "apply_patch_approval_request",
			"actionId": "approve_2",
			"reason":   "Update README.md",
		}),
	}
}

func scenarioInput(_ uint64, _ string) []step {
	return []step{
		ev(map[string]any{"type": "turn_started", "turnId": "turn_1"}),
		ev(map[string]any{
			"type":     "request_user_input",
			"actionId": "input_1",
			"questions": []map[string]any{
				{
					"id":       "scope",
					"header":   "Scope",
					"question": "Which part should I look at?",
					"options": []map[string]any{
						{"label": "core", "description": "Engine internals"},
						{"label": "cli", "description": "Command line"},
					},
				},
				{"id": "depth", "question": "How deep?", "options": []map[string]any{{"label": "shallow"}, {"label": "deep"}}},
			},
		}),
	}
}

func scenarioDuplicate(seed uint64, prompt string) []step {
	base := scenarioSummary(seed, prompt)
	out := make([]step, 0, len(base)*2)
	for _, s := range base {
		out = append(out, s)
		dup := s
		dup.repeatSeq = true
		out = append(out, dup)
	}
	return out
}

func scenarioFailure(_ uint64, _ string) []step {
	code := 1
	return []step{
		ev(map[string]any{"type": "turn_started", "turnId": "turn_1"}),
		{stderr: "mock: model backend unreachable\n"},
		ev(map[string]any{"type": "error", "message": "stream disconnected before completion"}),
		{exitCode: &code},
	}
}
