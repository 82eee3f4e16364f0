package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

// Console renders the run tree to a terminal.
type Console struct {
	writer  io.Writer
	noColor bool
	verbose bool
}

type ConsoleOption func(*Console)

func NewConsole(opts ...ConsoleOption) *Console {
	c := &Console{writer: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	if c.noColor {
		color.NoColor = true
	}
	return c
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(c *Console) { c.writer = w }
}

func WithNoColor(nc bool) ConsoleOption {
	return func(c *Console) { c.noColor = nc }
}

func WithVerbose(v bool) ConsoleOption {
	return func(c *Console) { c.verbose = v }
}

func (c *Console) Write(run *results.RunResult) error {
	bold := color.New(color.Bold).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(c.writer, "\n%s %s", bold("Run"), run.RunID)
	if run.Environment != "" {
		fmt.Fprintf(c.writer, " (%s)", run.Environment)
	}
	if run.Workers > 0 {
		fmt.Fprintf(c.writer, " [%d workers]", run.Workers)
	}
	fmt.Fprintf(c.writer, "\n\n")

	for _, s := range run.Suites {
		c.writeSuite(s, 0)
	}

	c.writeSummary(run)

	if run.Incomplete {
		fmt.Fprintf(c.writer, "%s\n\n", red("Run hit its hard deadline; results are partial."))
	}
	return nil
}

func (c *Console) writeSuite(s *results.SuiteResult, depth int) {
	pad := strings.Repeat("  ", depth)
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(c.writer, "%s%s\n", pad, bold(s.Name))

	for _, t := range s.Tests {
		c.writeTest(t, depth+1)
	}
	for _, child := range s.Suites {
		c.writeSuite(child, depth+1)
	}
}

func (c *Console) writeTest(t *results.TestResult, depth int) {
	pad := strings.Repeat("  ", depth)
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	switch t.Status {
	case results.StatusSkipped:
		fmt.Fprintf(c.writer, "%s%s %s", pad, yellow("-"), t.Name)
		if t.SkipReason != "" {
			fmt.Fprintf(c.writer, " (%s)", t.SkipReason)
		}
		fmt.Fprintf(c.writer, "\n")
	case results.StatusFixme:
		fmt.Fprintf(c.writer, "%s%s %s (fixme)\n", pad, yellow("?"), t.Name)
	case results.StatusExpectedFailure:
		fmt.Fprintf(c.writer, "%s%s %s (expected failure)\n", pad, yellow("!"), t.Name)
	case results.StatusUnexpectedPass:
		fmt.Fprintf(c.writer, "%s%s %s %s\n", pad, red("✗"), t.Name, red("(expected to fail but passed)"))
	case results.StatusFailed:
		fmt.Fprintf(c.writer, "%s%s %s %s\n", pad, red("✗"), t.Name, cyan(formatDuration(t.Duration)))
		if t.Error != "" {
			fmt.Fprintf(c.writer, "%s  %s %s\n", pad, red("→"), t.Error)
		}
		for _, shot := range t.Artifacts.Screenshots {
			fmt.Fprintf(c.writer, "%s    screenshot: %s\n", pad, shot)
		}
	default:
		fmt.Fprintf(c.writer, "%s%s %s %s\n", pad, green("✓"), t.Name, cyan(formatDuration(t.Duration)))
	}

	if t.Attempts > 1 {
		fmt.Fprintf(c.writer, "%s  (took %d attempts)\n", pad, t.Attempts)
	}
	if c.verbose {
		for _, step := range t.Steps {
			mark := green("✓")
			if !step.Passed {
				mark = red("✗")
			}
			fmt.Fprintf(c.writer, "%s    %s %s\n", pad, mark, step.Name)
		}
		for _, note := range t.Annotations {
			fmt.Fprintf(c.writer, "%s    note: %s\n", pad, note)
		}
	}
}

func (c *Console) writeSummary(run *results.RunResult) {
	s := run.Summary

	tw := table.NewWriter()
	tw.SetOutputMirror(c.writer)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Status", "Count"})
	tw.AppendRow(table.Row{"passed", s.Passed})
	if s.Failed > 0 {
		tw.AppendRow(table.Row{"failed", s.Failed})
	}
	if s.Skipped > 0 {
		tw.AppendRow(table.Row{"skipped", s.Skipped})
	}
	if s.Fixme > 0 {
		tw.AppendRow(table.Row{"fixme", s.Fixme})
	}
	if s.ExpectedFailure > 0 {
		tw.AppendRow(table.Row{"expected failure", s.ExpectedFailure})
	}
	if s.UnexpectedPass > 0 {
		tw.AppendRow(table.Row{"unexpected pass", s.UnexpectedPass})
	}
	tw.AppendFooter(table.Row{"total", s.Total})
	fmt.Fprintln(c.writer)
	tw.Render()

	if p50, p90, p99, ok := durationPercentiles(run); ok {
		fmt.Fprintf(c.writer, "Durations: p50 %dms, p90 %dms, p99 %dms\n", p50, p90, p99)
	}
	fmt.Fprintf(c.writer, "Time: %s\n\n", formatDuration(run.Duration))
}

// durationPercentiles aggregates executed-test durations into millisecond
// percentiles. Skips and other never-executed outcomes are excluded so they
// do not drag the distribution to zero.
func durationPercentiles(run *results.RunResult) (p50, p90, p99 int64, ok bool) {
	h := hdrhistogram.New(1, int64(time.Hour/time.Millisecond), 3)
	for _, s := range run.Suites {
		s.Walk(func(t *results.TestResult) {
			if t.Status == results.StatusSkipped || t.Status == results.StatusFixme {
				return
			}
			ms := t.Duration.Milliseconds()
			if ms < 1 {
				ms = 1
			}
			_ = h.RecordValue(ms)
		})
	}
	if h.TotalCount() == 0 {
		return 0, 0, 0, false
	}
	return h.ValueAtQuantile(50), h.ValueAtQuantile(90), h.ValueAtQuantile(99), true
}

func formatDuration(d time.Duration) string {
	if d >= time.Second {
		return fmt.Sprintf("(%.1fs)", d.Seconds())
	}
	return fmt.Sprintf("(%dms)", d.Milliseconds())
}
