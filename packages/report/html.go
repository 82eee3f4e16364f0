package report

import (
	"fmt"
	"html/template"
	"os"
	"strings"

	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

// htmlRun is the flattened view model the template renders.
type htmlRun struct {
	RunID          string
	Environment    string
	Workers        int
	Incomplete     bool
	Time           string
	DurationMS     float64
	Summary        results.Summary
	PassedPercent  float64
	FailedPercent  float64
	SkippedPercent float64
	Tests          []htmlTest
}

type htmlTest struct {
	Name        string
	Suite       string
	Status      string
	StatusClass string
	DurationMS  float64
	Error       string
	SkipReason  string
	Attempts    int
	Steps       []htmlStep
	Screenshots []string
	Annotations []string
}

type htmlStep struct {
	Name   string
	Passed bool
	Hook   string
}

// HTML writes a self-contained report page.
type HTML struct {
	path string
}

func NewHTML(path string) *HTML {
	return &HTML{path: path}
}

func (h *HTML) Write(run *results.RunResult) error {
	view := htmlRun{
		RunID:       run.RunID,
		Environment: run.Environment,
		Workers:     run.Workers,
		Incomplete:  run.Incomplete,
		Time:        run.StartedAt.Format("2006-01-02 15:04:05"),
		DurationMS:  float64(run.Duration.Milliseconds()),
		Summary:     run.Summary,
	}
	if run.Summary.Total > 0 {
		total := float64(run.Summary.Total)
		view.PassedPercent = float64(run.Summary.Passed) / total * 100
		view.FailedPercent = float64(run.Summary.Failures()) / total * 100
		view.SkippedPercent = float64(run.Summary.Skipped+run.Summary.Fixme) / total * 100
	}

	for _, s := range run.Suites {
		s.Walk(func(t *results.TestResult) {
			view.Tests = append(view.Tests, toHTMLTest(t))
		})
	}

	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("parsing html template: %w", err)
	}
	f, err := os.Create(h.path)
	if err != nil {
		return fmt.Errorf("creating html report: %w", err)
	}
	defer f.Close()
	return tmpl.Execute(f, view)
}

func toHTMLTest(t *results.TestResult) htmlTest {
	ht := htmlTest{
		Name:        t.Name,
		Suite:       strings.Join(t.SuitePath, " › "),
		Status:      string(t.Status),
		DurationMS:  float64(t.Duration.Milliseconds()),
		Error:       t.Error,
		SkipReason:  t.SkipReason,
		Attempts:    t.Attempts,
		Screenshots: t.Artifacts.Screenshots,
		Annotations: t.Annotations,
	}
	switch t.Status {
	case results.StatusPassed, results.StatusExpectedFailure:
		ht.StatusClass = "passed"
	case results.StatusSkipped, results.StatusFixme:
		ht.StatusClass = "skipped"
	default:
		ht.StatusClass = "failed"
	}
	flattenSteps(t.Steps, "", &ht.Steps)
	return ht
}

func flattenSteps(steps []results.Step, prefix string, out *[]htmlStep) {
	for _, s := range steps {
		name := s.Name
		if prefix != "" {
			name = prefix + " › " + name
		}
		*out = append(*out, htmlStep{Name: name, Passed: s.Passed, Hook: s.Hook})
		flattenSteps(s.Steps, name, out)
	}
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>ptf report {{.RunID}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 2rem; color: #1a1a2e; }
h1 { font-size: 1.4rem; }
.meta { color: #666; margin-bottom: 1.5rem; }
.bar { display: flex; height: 10px; border-radius: 5px; overflow: hidden; margin-bottom: 1rem; background: #eee; }
.bar .passed { background: #2e9e5b; }
.bar .failed { background: #d64545; }
.bar .skipped { background: #d6a545; }
.incomplete { color: #d64545; font-weight: bold; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #e5e5e5; }
tr.failed td { background: #fdf0f0; }
tr.skipped td { color: #888; }
.status { font-weight: 600; text-transform: uppercase; font-size: 0.75rem; }
.passed .status, td.passed { color: #2e9e5b; }
.failed .status, td.failed { color: #d64545; }
.skipped .status { color: #b98a2f; }
.error { font-family: monospace; font-size: 0.8rem; white-space: pre-wrap; color: #a33; }
.steps { font-size: 0.8rem; color: #555; margin: 4px 0 0 0; padding-left: 1rem; }
</style>
</head>
<body>
<h1>ptf run {{.RunID}}</h1>
<div class="meta">
{{if .Environment}}environment {{.Environment}} · {{end}}{{.Time}} · {{printf "%.0f" .DurationMS}}ms{{if .Workers}} · {{.Workers}} workers{{end}}
{{if .Incomplete}}<div class="incomplete">Run hit its hard deadline; results are partial.</div>{{end}}
</div>
<div class="bar">
<div class="passed" style="width: {{printf "%.1f" .PassedPercent}}%"></div>
<div class="failed" style="width: {{printf "%.1f" .FailedPercent}}%"></div>
<div class="skipped" style="width: {{printf "%.1f" .SkippedPercent}}%"></div>
</div>
<p>
{{.Summary.Passed}} passed · {{.Summary.Failed}} failed · {{.Summary.Skipped}} skipped{{if .Summary.Fixme}} · {{.Summary.Fixme}} fixme{{end}}{{if .Summary.ExpectedFailure}} · {{.Summary.ExpectedFailure}} expected failures{{end}}{{if .Summary.UnexpectedPass}} · {{.Summary.UnexpectedPass}} unexpected passes{{end}} · {{.Summary.Total}} total
</p>
<table>
<tr><th>Status</th><th>Suite</th><th>Test</th><th>Duration</th><th>Detail</th></tr>
{{range .Tests}}
<tr class="{{.StatusClass}}">
<td><span class="status">{{.Status}}</span></td>
<td>{{.Suite}}</td>
<td>{{.Name}}{{if gt .Attempts 1}} <em>({{.Attempts}} attempts)</em>{{end}}
{{if .Steps}}<ul class="steps">{{range .Steps}}<li>{{if .Hook}}[{{.Hook}}] {{end}}{{.Name}}</li>{{end}}</ul>{{end}}
</td>
<td>{{printf "%.0f" .DurationMS}}ms</td>
<td>{{if .Error}}<div class="error">{{.Error}}</div>{{end}}{{if .SkipReason}}{{.SkipReason}}{{end}}
{{range .Screenshots}}<div><a href="{{.}}">screenshot</a></div>{{end}}
</td>
</tr>
{{end}}
</table>
</body>
</html>
`
