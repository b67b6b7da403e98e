package mockbackend

import (
	"context"
	"fmt"
	"strings"

	"pkt.systems/cxconsole/schema"
)

const terminalPrompt = "mock$ "

func (b *Backend) createTerminal(ctx context.Context, req schema.TerminalCreateRequest) (schema.TerminalCreateResult, error) {
	b.mu.Lock()
	b.termCount++
	term := &mockTerminal{
		id:   schema.TerminalID(fmt.Sprintf("term-%d", b.termCount)),
		cwd:  displayCwd(req.Cwd),
		cols: 80,
		rows: 24,
	}
	b.terminals[term.id] = term
	b.mu.Unlock()
	if err := b.terminalData(ctx, term.id, terminalPrompt); err != nil {
		return schema.TerminalCreateResult{}, err
	}
	return schema.TerminalCreateResult{TerminalID: term.id, Title: "mock shell (" + term.cwd + ")"}, nil
}

func (b *Backend) writeTerminal(ctx context.Context, req schema.TerminalWriteRequest) error {
	if _, err := b.terminal(req.TerminalID); err != nil {
		return err
	}
	if err := b.terminalData(ctx, req.TerminalID, req.Data); err != nil {
		return err
	}
	for line := range strings.Lines(req.Data) {
		if !strings.HasSuffix(line, "\n") {
			continue
		}
		cmd := strings.TrimSpace(line)
		switch {
		case cmd == "exit":
			code := 0
			b.dropTerminal(req.TerminalID)
			return b.terminalExit(ctx, req.TerminalID, &code)
		case cmd == "pwd":
			term, _ := b.terminal(req.TerminalID)
			if err := b.terminalData(ctx, req.TerminalID, term.cwd+"\r\n"); err != nil {
				return err
			}
		case strings.HasPrefix(cmd, "echo "):
			if err := b.terminalData(ctx, req.TerminalID, strings.TrimPrefix(cmd, "echo ")+"\r\n"); err != nil {
				return err
			}
		case cmd != "":
			if err := b.terminalData(ctx, req.TerminalID, "mock: "+cmd+": command not found\r\n"); err != nil {
				return err
			}
		}
		if err := b.terminalData(ctx, req.TerminalID, terminalPrompt); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) resizeTerminal(_ context.Context, req schema.TerminalResizeRequest) error {
	if req.Cols <= 0 || req.Rows <= 0 {
		return fmt.Errorf("invalid terminal size %dx%d", req.Cols, req.Rows)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	term, ok := b.terminals[req.TerminalID]
	if !ok {
		return fmt.Errorf("unknown terminal: %s", req.TerminalID)
	}
	term.cols = req.Cols
	term.rows = req.Rows
	return nil
}

func (b *Backend) killTerminal(ctx context.Context, id schema.TerminalID) error {
	if _, err := b.terminal(id); err != nil {
		return err
	}
	b.dropTerminal(id)
	code := 137
	return b.terminalExit(ctx, id, &code)
}

// TerminalSize reports the last geometry applied to a terminal.
func (b *Backend) TerminalSize(id schema.TerminalID) (cols, rows int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	term, ok := b.terminals[id]
	if !ok {
		return 0, 0, false
	}
	return term.cols, term.rows, true
}

func (b *Backend) terminal(id schema.TerminalID) (*mockTerminal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	term, ok := b.terminals[id]
	if !ok {
		return nil, fmt.Errorf("unknown terminal: %s", id)
	}
	return term, nil
}

func (b *Backend) dropTerminal(id schema.TerminalID) {
	b.mu.Lock()
	delete(b.terminals, id)
	b.mu.Unlock()
}

func (b *Backend) nextTerminalSeq(id schema.TerminalID) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	term, ok := b.terminals[id]
	if !ok {
		return 0
	}
	term.seq++
	return term.seq
}

func (b *Backend) terminalData(ctx context.Context, id schema.TerminalID, chunk string) error {
	if chunk == "" {
		return nil
	}
	return b.publishTerminal(ctx, map[string]any{"data": map[string]any{
		"terminalId": id,
		"seq":        b.nextTerminalSeq(id),
		"chunk":      chunk,
	}})
}

func (b *Backend) terminalExit(ctx context.Context, id schema.TerminalID, code *int) error {
	return b.publishTerminal(ctx, map[string]any{"exit": map[string]any{
		"terminalId": id,
		"exitCode":   code,
	}})
}
