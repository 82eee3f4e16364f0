package assertions

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mohammed-a-khan/ptf/packages/core/runtime"
)

// Result is one evaluated check.
type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
	Subject  string
	Operator string
}

// Asserter binds checks to a test fixture.
type Asserter struct {
	t *runtime.T
}

// For creates an asserter recording into the given fixture.
func For(t *runtime.T) *Asserter {
	return &Asserter{t: t}
}

func (a *Asserter) record(r *Result) error {
	var err error
	if !r.Passed {
		err = fmt.Errorf("%s %s: %s", r.Subject, r.Operator, r.Message)
	}
	detail := fmt.Sprintf("expected %v, got %v", formatValue(r.Expected), formatValue(r.Actual))
	a.t.Action("assert "+r.Subject+" "+r.Operator, detail, 0, err)
	return err
}

// Equal checks deep equality with numeric coercion, so 2 and 2.0 compare
// equal regardless of which decode produced them.
func (a *Asserter) Equal(subject string, actual, expected any) error {
	return a.record(evaluate(subject, "equals", actual, expected))
}

// NotEqual is the negation of Equal.
func (a *Asserter) NotEqual(subject string, actual, expected any) error {
	r := evaluate(subject, "equals", actual, expected)
	r.Operator = "notEquals"
	r.Passed = !r.Passed
	if !r.Passed {
		r.Message = fmt.Sprintf("both sides are %v", formatValue(actual))
	} else {
		r.Message = ""
	}
	return a.record(r)
}

// Contains checks substring or slice membership.
func (a *Asserter) Contains(subject string, actual any, expected any) error {
	return a.record(evaluate(subject, "contains", actual, expected))
}

// Matches checks the actual value against a regular expression.
func (a *Asserter) Matches(subject string, actual any, pattern string) error {
	return a.record(evaluate(subject, "matches", actual, pattern))
}

// GreaterThan compares numerically.
func (a *Asserter) GreaterThan(subject string, actual, expected any) error {
	return a.record(evaluate(subject, "greaterThan", actual, expected))
}

// LessThan compares numerically.
func (a *Asserter) LessThan(subject string, actual, expected any) error {
	return a.record(evaluate(subject, "lessThan", actual, expected))
}

// JSONPath extracts a gjson path from a JSON document, usually the return
// value of a page Evaluate call, and compares it.
func (a *Asserter) JSONPath(doc, path string, expected any) error {
	res := gjson.Get(doc, path)
	if !res.Exists() {
		return a.record(&Result{
			Subject:  "jsonpath " + path,
			Operator: "equals",
			Expected: expected,
			Message:  "path not found in document",
		})
	}
	return a.Equal("jsonpath "+path, res.Value(), expected)
}

// Text checks the text content of the first element matching selector.
func (a *Asserter) Text(selector, expected string) error {
	page, err := a.t.Page()
	if err != nil {
		return a.record(&Result{Subject: "text " + selector, Operator: "equals", Expected: expected, Message: err.Error()})
	}
	actual, err := page.Text(selector)
	if err != nil {
		return a.record(&Result{Subject: "text " + selector, Operator: "equals", Expected: expected, Message: err.Error()})
	}
	return a.Equal("text "+selector, actual, expected)
}

// Title checks the page title.
func (a *Asserter) Title(expected string) error {
	page, err := a.t.Page()
	if err != nil {
		return a.record(&Result{Subject: "title", Operator: "equals", Expected: expected, Message: err.Error()})
	}
	actual, err := page.Title()
	if err != nil {
		return a.record(&Result{Subject: "title", Operator: "equals", Expected: expected, Message: err.Error()})
	}
	return a.Equal("title", actual, expected)
}

// URLMatches checks the current page URL against a regular expression.
func (a *Asserter) URLMatches(pattern string) error {
	page, err := a.t.Page()
	if err != nil {
		return a.record(&Result{Subject: "url", Operator: "matches", Expected: pattern, Message: err.Error()})
	}
	return a.Matches("url", page.URL(), pattern)
}

// evaluate runs one comparison and produces its result.
func evaluate(subject, operator string, actual, expected any) *Result {
	r := &Result{Subject: subject, Operator: operator, Expected: expected, Actual: actual}

	switch operator {
	case "equals":
		r.Passed = looseEqual(actual, expected)
		if !r.Passed {
			r.Message = fmt.Sprintf("expected %v, got %v", formatValue(expected), formatValue(actual))
		}
	case "contains":
		r.Passed = contains(actual, expected)
		if !r.Passed {
			r.Message = fmt.Sprintf("%v does not contain %v", formatValue(actual), formatValue(expected))
		}
	case "matches":
		pattern := fmt.Sprintf("%v", expected)
		re, err := regexp.Compile(pattern)
		if err != nil {
			r.Message = fmt.Sprintf("invalid pattern %q: %v", pattern, err)
			return r
		}
		r.Passed = re.MatchString(fmt.Sprintf("%v", actual))
		if !r.Passed {
			r.Message = fmt.Sprintf("%v does not match %q", formatValue(actual), pattern)
		}
	case "greaterThan", "lessThan":
		av, aok := toFloat(actual)
		ev, eok := toFloat(expected)
		if !aok || !eok {
			r.Message = "both values must be numeric"
			return r
		}
		if operator == "greaterThan" {
			r.Passed = av > ev
		} else {
			r.Passed = av < ev
		}
		if !r.Passed {
			r.Message = fmt.Sprintf("%v is not %s %v", av, operator, ev)
		}
	default:
		r.Message = fmt.Sprintf("unknown operator %q", operator)
	}
	return r
}

// looseEqual compares with numeric coercion before falling back to deep
// equality.
func looseEqual(actual, expected any) bool {
	if av, ok := toFloat(actual); ok {
		if ev, ok := toFloat(expected); ok {
			return av == ev
		}
	}
	return reflect.DeepEqual(actual, expected)
}

func contains(actual, expected any) bool {
	switch av := actual.(type) {
	case string:
		return strings.Contains(av, fmt.Sprintf("%v", expected))
	case []any:
		for _, item := range av {
			if looseEqual(item, expected) {
				return true
			}
		}
		return false
	case []string:
		want := fmt.Sprintf("%v", expected)
		for _, item := range av {
			if item == want {
				return true
			}
		}
		return false
	}
	return strings.Contains(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", expected))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func formatValue(v any) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	}
	s := fmt.Sprintf("%v", v)
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}
