package engine

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Event names, hierarchical by phase.
const (
	QueryInvoked       = "query/invoked"
	QueryPlanOptimized = "query/plan.optimized"
	QueryCompleted     = "query/completed"
)

// Event is one step of a query's life.
type Event struct {
	Name    string
	Start   time.Time
	End     time.Time
	Latency time.Duration
	Data    map[string]any
}

// Handler receives events as they happen. It is called from the goroutine
// running the query.
type Handler func(Event)

func (e *Engine) emit(name string, start time.Time, data map[string]any) {
	if e.handler == nil {
		return
	}
	end := time.Now()
	e.handler(Event{Name: name, Start: start, End: end, Latency: end.Sub(start), Data: data})
}

// OutputFormatter renders events as human-readable lines.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter writes to w, with ANSI colors when useColor is set.
func NewOutputFormatter(w io.Writer, useColor bool) *OutputFormatter {
	return &OutputFormatter{useColor: useColor, writer: w}
}

// Handle prints one event.
func (f *OutputFormatter) Handle(event Event) {
	if out := f.Format(event); out != "" {
		fmt.Fprintln(f.writer, out)
	}
}

// Format converts an event to a line of text. Unknown events format to
// the empty string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)
	switch event.Name {
	case QueryInvoked:
		return fmt.Sprintf("%s %s %s query", latency, f.colorize("===", color.FgYellow), event.Data["form"])

	case QueryPlanOptimized:
		plan, _ := event.Data["plan"].(string)
		return fmt.Sprintf("%s Plan after %d rounds:\n%s", latency, event.Data["rounds"], indentPlan(plan))

	case QueryCompleted:
		if err, _ := event.Data["error"].(error); err != nil {
			return fmt.Sprintf("%s %s Query failed: %v", latency, f.colorize("✗", color.FgRed), err)
		}
		n, _ := event.Data["results"].(int)
		return fmt.Sprintf("%s %s Query done with %s", latency, f.colorize("===", color.FgGreen), f.colorizeCount("results", n))
	}
	return ""
}

func (f *OutputFormatter) formatLatency(d time.Duration) string {
	var s string
	switch {
	case d < time.Millisecond:
		s = fmt.Sprintf("%6dµs", d.Microseconds())
	case d < time.Second:
		s = fmt.Sprintf("%6.2fms", float64(d.Microseconds())/1000)
	default:
		s = fmt.Sprintf("%6.2fs ", d.Seconds())
	}
	s = "[" + s + "]"
	if d >= 100*time.Millisecond {
		return f.colorize(s, color.FgRed)
	}
	return f.colorize(s, color.Faint)
}

func (f *OutputFormatter) colorizeCount(label string, n int) string {
	return f.colorize(fmt.Sprintf("%d %s", n, label), color.FgCyan)
}

func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

func indentPlan(plan string) string {
	lines := strings.Split(plan, "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
