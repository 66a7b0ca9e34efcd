// Package console prints human-facing progress lines for the reload cycle.
// Structured diagnostics go to the logger; this is what the developer
// watching the terminal sees.
package console

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Iron-Ham/hotswap/internal/event"
)

// ClearSequence erases the screen above the cursor and homes it.
const ClearSequence = "\x1b[1J\x1b[1;1H"

var (
	primaryColor = lipgloss.Color("#A78BFA")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#F87171")
	mutedColor   = lipgloss.Color("#9CA3AF")
)

// isTerminal reports whether w is attached to a terminal.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// Options controls the reporter.
type Options struct {
	// ClearScreen clears the terminal before each reloaded generation starts.
	// It has no effect when the output is not a terminal.
	ClearScreen bool
	// Color enables styled output.
	Color bool
}

type palette struct {
	stamp   lipgloss.Style
	label   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
}

func newPalette(r *lipgloss.Renderer, color bool) palette {
	if !color {
		plain := r.NewStyle()
		return palette{stamp: plain, label: plain, success: plain, warning: plain, failure: plain}
	}
	return palette{
		stamp:   r.NewStyle().Foreground(mutedColor),
		label:   r.NewStyle().Foreground(primaryColor).Bold(true),
		success: r.NewStyle().Foreground(successColor),
		warning: r.NewStyle().Foreground(warningColor),
		failure: r.NewStyle().Foreground(errorColor).Bold(true),
	}
}

// Reporter renders bus events as progress lines.
type Reporter struct {
	mu    sync.Mutex
	out   io.Writer
	clear bool
	style palette
	now   func() time.Time
}

// New creates a Reporter writing to out.
func New(out io.Writer, opts Options) *Reporter {
	return &Reporter{
		out:   out,
		clear: opts.ClearScreen && isTerminal(out),
		style: newPalette(lipgloss.NewRenderer(out), opts.Color),
		now:   time.Now,
	}
}

// Subscribe attaches the reporter to bus and returns the subscription ID.
func (r *Reporter) Subscribe(bus *event.Bus) string {
	return bus.SubscribeAll(r.Handle)
}

// Handle prints the line for e, if any.
func (r *Reporter) Handle(e event.Event) {
	switch e := e.(type) {
	case event.BuildStartedEvent:
		if e.Initial {
			r.line(r.style.label, "build", "initial build")
		} else {
			r.line(r.style.label, "build", fmt.Sprintf("building generation %d", e.Generation))
		}
	case event.BuildFinishedEvent:
		if !e.Succeeded() {
			r.line(r.style.failure, "build", fmt.Sprintf("failed after %s: %v", round(e.Duration), e.Err))
		}
	case event.ReloadAbortedEvent:
		if e.Stage == "load" {
			r.line(r.style.warning, "load", fmt.Sprintf("generation %d not loaded: %v", e.Generation, e.Err))
		} else {
			r.line(r.style.warning, "reload", "keeping current generation")
		}
	case event.WorkerStartedEvent:
		if e.Generation > 0 && r.clear {
			r.write(ClearSequence)
		}
		r.line(r.style.success, "run", fmt.Sprintf("generation %d", e.Generation))
	case event.ReloadCompletedEvent:
		r.line(r.style.success, "reload", fmt.Sprintf("%d -> %d in %s", e.From, e.To, round(e.Duration)))
	case event.WorkerExitedEvent:
		if e.Err != nil {
			r.line(r.style.failure, "worker", e.Err.Error())
		}
	case event.ShutdownRequestedEvent:
		r.line(r.style.warning, "stop", "shutting down")
	}
}

func (r *Reporter) line(s lipgloss.Style, label, msg string) {
	stamp := r.style.stamp.Render(r.now().Format("15:04:05"))
	r.write(fmt.Sprintf("%s %s %s\n", stamp, s.Render("["+label+"]"), msg))
}

func (r *Reporter) write(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = io.WriteString(r.out, s)
}

func round(d time.Duration) time.Duration {
	if d > time.Second {
		return d.Round(10 * time.Millisecond)
	}
	return d.Round(time.Millisecond)
}
