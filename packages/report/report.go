// Package report renders a finished run into its output formats. Every
// reporter consumes the results tree only; nothing here reaches back into
// the runner or the browser.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

// Reporter renders one run.
type Reporter interface {
	Write(run *results.RunResult) error
}

// New builds a reporter by name. File-backed reporters write into dir.
func New(name, dir string, noColor bool) (Reporter, error) {
	switch name {
	case "console":
		return NewConsole(WithNoColor(noColor)), nil
	case "json":
		return NewJSON(filepath.Join(dir, "results.json")), nil
	case "junit":
		return NewJUnit(filepath.Join(dir, "junit.xml")), nil
	case "html":
		return NewHTML(filepath.Join(dir, "report.html")), nil
	default:
		return nil, fmt.Errorf("unknown reporter %q", name)
	}
}

// WriteAll runs every named reporter, collecting the first error but still
// attempting the rest.
func WriteAll(names []string, dir string, noColor bool, run *results.RunResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}
	var firstErr error
	for _, name := range names {
		r, err := New(name, dir, noColor)
		if err == nil {
			err = r.Write(run)
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("reporter %s: %w", name, err)
		}
	}
	return firstErr
}
