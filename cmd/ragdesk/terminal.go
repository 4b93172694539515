package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MegaGrindStone/ragdesk/internal/controller"
	"github.com/MegaGrindStone/ragdesk/internal/models"
	"github.com/fatih/color"
)

// terminalView prints the controller's changes as they happen. Answers are printed incrementally, so it
// only reads well with one query in flight at a time.
type terminalView struct {
	mu  sync.Mutex
	out io.Writer

	// printed is how much of each streaming answer is already on screen.
	printed map[string]int
	states  map[string]models.StreamingState

	user    *color.Color
	dim     *color.Color
	heading *color.Color
	success *color.Color
	failure *color.Color
}

func newTerminalView(out io.Writer) *terminalView {
	return &terminalView{
		out:     out,
		printed: make(map[string]int),
		states:  make(map[string]models.StreamingState),
		user:    color.New(color.FgCyan, color.Bold),
		dim:     color.New(color.Faint),
		heading: color.New(color.FgYellow, color.Bold),
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
	}
}

func (v *terminalView) MessageAppended(msg models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.states[msg.ID] = msg.State
	if msg.Role == models.RoleUser {
		v.user.Fprintf(v.out, "> %s\n", msg.Text)
		return
	}
	v.dim.Fprintln(v.out, msg.Text)
}

func (v *terminalView) MessageUpdated(msg models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	prev := v.states[msg.ID]
	v.states[msg.ID] = msg.State

	switch {
	case prev == models.StreamingStateLoading && msg.State == models.StreamingStateStreaming:
		// The stream opened; the placeholder text is still there.
		return
	case prev == models.StreamingStateLoading && msg.State == models.StreamingStateEnded:
		v.failure.Fprintln(v.out, msg.Text)
		return
	}

	printed := v.printed[msg.ID]
	if msg.State == models.StreamingStateEnded && printed == 0 && msg.Text != "" {
		// Nothing was streamed, so this is the failure text.
		v.failure.Fprintln(v.out, msg.Text)
		delete(v.printed, msg.ID)
		return
	}

	if printed <= len(msg.Text) {
		fmt.Fprint(v.out, msg.Text[printed:])
		v.printed[msg.ID] = len(msg.Text)
	}
	if msg.State == models.StreamingStateEnded {
		fmt.Fprintln(v.out)
		delete(v.printed, msg.ID)
	}
}

func (v *terminalView) ModeChanged(d models.ModeDescriptors) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.dim.Fprintf(v.out, "[%s] %s\n", d.ToggleLabel, d.Placeholder)
}

func (v *terminalView) ResultsChanged(list controller.ResultList) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if list.Heading == "" {
		return
	}
	v.heading.Fprintln(v.out, list.Heading)
	if list.Empty {
		v.dim.Fprintln(v.out, list.Placeholder)
		return
	}
	for _, c := range list.Cards {
		v.heading.Fprintf(v.out, "  %s\n", c.Header)
		if c.Score != "" {
			v.dim.Fprintf(v.out, "  %s\n", c.Score)
		}
		if c.URL != "" {
			v.dim.Fprintf(v.out, "  %s\n", c.URL)
		}
		fmt.Fprintf(v.out, "  %s\n", indent(c.Body))
	}
	fmt.Fprintln(v.out)
}

func (v *terminalView) Notified(n models.Notification) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if n.IsError {
		v.failure.Fprintf(v.out, "%s: %s\n", n.Title, n.Message)
		return
	}
	v.success.Fprintf(v.out, "%s: %s\n", n.Title, n.Message)
}

func indent(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n  ")
}
