package format

import (
	"fmt"
	"strings"
	"time"

	"pkt.systems/cxconsole/internal/markdown"
	"pkt.systems/cxconsole/schema"
)

// PlainRenderer formats engine state as plain text lines.
type PlainRenderer struct {
	now func() time.Time
}

// NewPlainRenderer returns a default plain-text renderer.
func NewPlainRenderer() *PlainRenderer {
	return &PlainRenderer{now: time.Now}
}

// FormatMessage converts a transcript entry into user-facing lines.
func (p *PlainRenderer) FormatMessage(msg schema.Message) []string {
	switch msg.Kind {
	case schema.MessageAgent:
		return markLines(schema.AgentMarker, splitLines(msg.Text))
	case schema.MessageSystem:
		return []string{"status: " + msg.Text}
	case schema.MessageError:
		return []string{"error: " + msg.Text}
	case schema.MessageSpawn:
		if msg.Spawn == nil {
			return []string{msg.Text}
		}
		return p.FormatSpawn(*msg.Spawn)
	default:
		return splitLines(msg.Text)
	}
}

// FormatSpawn lists the agents of a spawn record.
func (p *PlainRenderer) FormatSpawn(record schema.SpawnRecord) []string {
	lines := []string{fmt.Sprintf("sub-agents (%d):", len(record.Agents))}
	for _, agent := range record.Agents {
		status := string(agent.Status)
		if status == "" {
			status = "unknown"
		}
		line := fmt.Sprintf("- %s [%s]", agent.AgentID, status)
		if agent.Progress != nil {
			line += fmt.Sprintf(" %d%%", *agent.Progress)
		}
		if agent.ElapsedMs != nil {
			line += " " + formatDuration(time.Duration(*agent.ElapsedMs)*time.Millisecond)
		}
		if agent.Prompt != "" {
			line += " " + agent.Prompt
		}
		if agent.Ownership != "" {
			line += " (owns " + agent.Ownership + ")"
		}
		lines = append(lines, line)
	}
	if record.Waiting != nil && len(record.Waiting.Receivers) > 0 {
		receivers := make([]string, 0, len(record.Waiting.Receivers))
		for _, id := range record.Waiting.Receivers {
			receivers = append(receivers, string(id))
		}
		lines = append(lines, "waiting on "+strings.Join(receivers, ", "))
	}
	return lines
}

// FormatApproval describes one pending approval.
func (p *PlainRenderer) FormatApproval(approval schema.PendingApproval) []string {
	head := fmt.Sprintf("approval %s (%s)", approval.ActionID, approval.Kind)
	if approval.Reason != "" {
		head += ": " + approval.Reason
	}
	lines := []string{head}
	if approval.Command != "" {
		lines = append(lines, markLines(schema.CommandMarker, []string{"$ " + approval.Command})...)
	}
	if approval.Cwd != "" {
		lines = append(lines, "  in "+approval.Cwd)
	}
	if approval.GrantRoot != "" {
		lines = append(lines, "  grants write access to "+approval.GrantRoot)
	}
	return lines
}

// FormatUserInput describes the pending user-input request.
func (p *PlainRenderer) FormatUserInput(input schema.PendingUserInput) []string {
	lines := []string{fmt.Sprintf("input requested (%s):", input.ActionID)}
	for _, q := range input.Questions {
		label := q.Question
		if q.Header != "" {
			label = q.Header + ": " + label
		}
		lines = append(lines, fmt.Sprintf("  %s - %s", q.ID, label))
		for i, opt := range q.Options {
			line := fmt.Sprintf("    %d. %s", i+1, opt.Label)
			if opt.Description != "" {
				line += " - " + opt.Description
			}
			lines = append(lines, line)
		}
	}
	if input.TimeoutMs != nil {
		lines = append(lines, "  expires in "+formatDuration(time.Duration(*input.TimeoutMs)*time.Millisecond))
	}
	return lines
}

// FormatStatus renders the session status block.
func (p *PlainRenderer) FormatStatus(snapshot schema.EngineSnapshot, modelLabel string) []string {
	info := snapshot.Session
	session := "none"
	if info.SessionID != nil {
		session = fmt.Sprintf("%d (pid %d)", *info.SessionID, info.PID)
	}
	state := string(info.State)
	if info.Busy {
		state += ", turn in progress"
	}
	labels := []string{"State", "Session", "Model", "Tokens used", "Context window", "Reasoning", "Approvals", "Terminals", "Last error"}
	width := maxLabelWidth(labels)
	lines := []string{
		"Status",
		formatStatusLine("State", state, width),
		formatStatusLine("Session", session, width),
		formatStatusLine("Model", modelLabel, width),
	}
	if info.Usage != nil {
		lines = append(lines, formatStatusLine("Tokens used", formatTokens(*info.Usage), width))
		if info.Usage.ContextWindow > 0 {
			lines = append(lines, formatStatusLine("Context window", fmt.Sprintf("%d", info.Usage.ContextWindow), width))
		}
	}
	if info.Reasoning != "" {
		lines = append(lines, formatStatusLine("Reasoning", firstLine(info.Reasoning), width))
	}
	pending := fmt.Sprintf("%d", len(snapshot.Approvals))
	if snapshot.UserInput != nil {
		pending += ", input requested"
	}
	lines = append(lines,
		formatStatusLine("Approvals", pending, width),
		formatStatusLine("Terminals", fmt.Sprintf("%d", len(snapshot.Terminals)), width),
	)
	if info.LastError != "" {
		lines = append(lines, formatStatusLine("Last error", info.LastError, width))
	}
	return lines
}

// FormatModels lists the catalog, marking the default and selected entries.
func (p *PlainRenderer) FormatModels(catalog schema.CatalogSnapshot, selected schema.ModelID) []string {
	head := fmt.Sprintf("models (%d)", len(catalog.Entries))
	var notes []string
	if !catalog.CachedAt.IsZero() {
		notes = append(notes, "cached "+formatAge(p.now().Sub(catalog.CachedAt))+" ago")
	}
	if catalog.Stale {
		notes = append(notes, "stale")
	}
	if catalog.Loading {
		notes = append(notes, "refreshing")
	}
	if len(notes) > 0 {
		head += " [" + strings.Join(notes, ", ") + "]"
	}
	lines := []string{head}
	for _, entry := range catalog.Entries {
		mark := " "
		if entry.ID == selected {
			mark = "*"
		}
		line := fmt.Sprintf("%s %s", mark, entry.ID)
		if entry.DisplayName != "" && entry.DisplayName != string(entry.ID) {
			line += " - " + entry.DisplayName
		}
		if entry.IsDefault {
			line += " (default)"
		}
		if len(entry.SupportedReasoningEfforts) > 0 {
			efforts := make([]string, 0, len(entry.SupportedReasoningEfforts))
			for _, opt := range entry.SupportedReasoningEfforts {
				efforts = append(efforts, string(opt.ReasoningEffort))
			}
			line += " reasoning: " + strings.Join(efforts, "|")
		}
		lines = append(lines, line)
	}
	if catalog.LastError != "" {
		lines = append(lines, "last refresh failed: "+catalog.LastError)
	}
	return lines
}

// FormatTerminals lists terminal sessions.
func (p *PlainRenderer) FormatTerminals(terminals []schema.TerminalSnapshot) []string {
	if len(terminals) == 0 {
		return []string{"no terminals"}
	}
	lines := make([]string, 0, len(terminals))
	for _, term := range terminals {
		mark := " "
		if term.Active {
			mark = "*"
		}
		state := "running"
		if !term.Alive {
			state = "exited"
			if term.ExitCode != nil {
				state = fmt.Sprintf("exited %d", *term.ExitCode)
			}
		}
		line := fmt.Sprintf("%s %s [%s]", mark, term.ID, state)
		if term.Title != "" {
			line += " " + term.Title
		}
		if term.Cols > 0 && term.Rows > 0 {
			line += fmt.Sprintf(" %dx%d", term.Cols, term.Rows)
		}
		lines = append(lines, line)
	}
	return lines
}

// FormatTerminalOutput joins the retained chunks of a terminal into lines.
func (p *PlainRenderer) FormatTerminalOutput(term schema.TerminalSnapshot) []string {
	var b strings.Builder
	for _, chunk := range term.Chunks {
		b.WriteString(chunk.Data)
	}
	text := strings.ReplaceAll(b.String(), "\r\n", "\n")
	return splitLines(strings.TrimRight(text, "\n"))
}

// FormatRecords lists recent sessions, newest first.
func (p *PlainRenderer) FormatRecords(records []schema.SessionRecord) []string {
	if len(records) == 0 {
		return []string{"no recent sessions"}
	}
	lines := make([]string, 0, len(records))
	for _, record := range records {
		state := ""
		if record.Active {
			state = " (active)"
		}
		lines = append(lines, fmt.Sprintf("- session %d %s, started %s%s", record.SessionID, record.Name, record.StartedAt.Local().Format("2006-01-02 15:04"), state))
	}
	return lines
}

// FormatConsole renders a console tail with a header noting omitted lines.
func (p *PlainRenderer) FormatConsole(tail schema.ConsoleTail) []string {
	if len(tail.Lines) == 0 {
		return []string{"no backend output"}
	}
	header := fmt.Sprintf("backend output (%d of %d lines", len(tail.Lines), tail.Total)
	if tail.Dropped > 0 {
		header += fmt.Sprintf(", %d older dropped", tail.Dropped)
	}
	lines := make([]string, 0, len(tail.Lines)+1)
	lines = append(lines, header+")")
	return append(lines, tail.Lines...)
}

// FormatMCPServers lists MCP servers.
func (p *PlainRenderer) FormatMCPServers(servers []schema.MCPServer) []string {
	if len(servers) == 0 {
		return []string{"no MCP servers"}
	}
	lines := make([]string, 0, len(servers))
	for _, server := range servers {
		line := "- " + server.Name
		if server.Status != "" {
			line += " [" + server.Status + "]"
		}
		if len(server.Tools) > 0 {
			line += " tools: " + strings.Join(server.Tools, ", ")
		}
		lines = append(lines, line)
	}
	return lines
}

// PlainLine strips rendering markers for output without styling. Agent and
// reasoning lines have their markdown flattened.
func PlainLine(line string) string {
	if rest, ok := strings.CutPrefix(line, schema.StderrMarker); ok {
		return "stderr: " + rest
	}
	for _, marker := range []string{schema.AgentMarker, schema.ReasoningMarker} {
		if rest, ok := strings.CutPrefix(line, marker); ok {
			return markdown.Flatten(rest)
		}
	}
	if rest, ok := strings.CutPrefix(line, schema.CommandMarker); ok {
		return rest
	}
	return line
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return line
}

func markLines(marker string, lines []string) []string {
	if marker == "" || len(lines) == 0 {
		return lines
	}
	marked := make([]string, 0, len(lines))
	for _, line := range lines {
		marked = append(marked, marker+line)
	}
	return marked
}

func maxLabelWidth(labels []string) int {
	max := 0
	for _, label := range labels {
		if label == "" {
			continue
		}
		width := len(label) + 1
		if width > max {
			max = width
		}
	}
	return max
}

func formatStatusLine(label, value string, labelWidth int) string {
	if labelWidth <= 0 {
		labelWidth = len(label) + 1
	}
	if strings.TrimSpace(value) == "" {
		value = "unknown"
	}
	return fmt.Sprintf("%-*s %s", labelWidth, label+":", value)
}

func formatTokens(usage schema.TokenUsage) string {
	line := fmt.Sprintf("%d total (%d in", usage.TotalTokens, usage.InputTokens)
	if usage.CachedInputTokens > 0 {
		line += fmt.Sprintf(", %d cached", usage.CachedInputTokens)
	}
	return line + fmt.Sprintf(", %d out)", usage.OutputTokens)
}

func formatDuration(duration time.Duration) string {
	if duration < time.Second {
		return fmt.Sprintf("%dms", duration.Milliseconds())
	}
	seconds := duration.Seconds()
	if seconds < 10 {
		return fmt.Sprintf("%.2fs", seconds)
	}
	return fmt.Sprintf("%.1fs", seconds)
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "moments"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
