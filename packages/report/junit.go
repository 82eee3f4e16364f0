package report

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

// JUnit XML structures. One testsuite per suite node, classname is the
// slash-joined suite path so CI groupings survive nesting.

type junitTestSuites struct {
	XMLName   xml.Name         `xml:"testsuites"`
	Name      string           `xml:"name,attr,omitempty"`
	Tests     int              `xml:"tests,attr"`
	Failures  int              `xml:"failures,attr"`
	Errors    int              `xml:"errors,attr"`
	Skipped   int              `xml:"skipped,attr"`
	Time      float64          `xml:"time,attr"`
	Timestamp string           `xml:"timestamp,attr,omitempty"`
	Suites    []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     float64         `xml:"time,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnit writes CI-consumable XML.
type JUnit struct {
	path string
}

func NewJUnit(path string) *JUnit {
	return &JUnit{path: path}
}

func (j *JUnit) Write(run *results.RunResult) error {
	doc := junitTestSuites{
		Name:      "ptf",
		Tests:     run.Summary.Total,
		Failures:  run.Summary.Failures(),
		Skipped:   run.Summary.Skipped + run.Summary.Fixme,
		Time:      run.Duration.Seconds(),
		Timestamp: run.StartedAt.Format(time.RFC3339),
	}
	for _, s := range run.Suites {
		collectSuites(s, nil, &doc.Suites)
	}

	f, err := os.Create(j.path)
	if err != nil {
		return fmt.Errorf("creating junit report: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding junit report: %w", err)
	}
	return enc.Close()
}

func collectSuites(s *results.SuiteResult, parents []string, out *[]junitTestSuite) {
	path := append(append([]string{}, parents...), s.Name)
	if len(s.Tests) > 0 {
		suite := junitTestSuite{
			Name: strings.Join(path, "/"),
			Time: s.Duration.Seconds(),
		}
		for _, t := range s.Tests {
			suite.Tests++
			suite.Cases = append(suite.Cases, toCase(t, suite.Name))
			switch t.Status {
			case results.StatusFailed, results.StatusUnexpectedPass:
				suite.Failures++
			case results.StatusSkipped, results.StatusFixme:
				suite.Skipped++
			}
		}
		*out = append(*out, suite)
	}
	for _, child := range s.Suites {
		collectSuites(child, path, out)
	}
}

func toCase(t *results.TestResult, className string) junitTestCase {
	tc := junitTestCase{
		Name:      t.Name,
		ClassName: className,
		Time:      t.Duration.Seconds(),
	}
	switch t.Status {
	case results.StatusFailed, results.StatusUnexpectedPass:
		failureType := "Failure"
		if t.TimedOut {
			failureType = "Timeout"
		}
		tc.Failure = &junitFailure{
			Message: t.Error,
			Type:    failureType,
			Content: t.Stack,
		}
	case results.StatusSkipped:
		tc.Skipped = &junitSkipped{Message: t.SkipReason}
	case results.StatusFixme:
		tc.Skipped = &junitSkipped{Message: "fixme: " + t.SkipReason}
	case results.StatusExpectedFailure:
		tc.Skipped = &junitSkipped{Message: "expected failure: " + t.SkipReason}
	}
	return tc
}
