package gherkin

import (
	"fmt"
	"strings"

	"github.com/mohammed-a-khan/ptf/packages/core/registry"
	"github.com/mohammed-a-khan/ptf/packages/core/runtime"
	"github.com/mohammed-a-khan/ptf/packages/data"
	"github.com/mohammed-a-khan/ptf/packages/steps"
)

// RegisterFeature adds a parsed feature to the unit catalog. Each scenario
// becomes a test; an outline's Examples table becomes an inline data source
// so iterations flow through the same expansion as Go-authored tests.
func RegisterFeature(f *Feature, reg *steps.Registry) {
	registry.Register(f.Name, BuildFor(f, reg))
}

// BuildFor returns the build function for one feature.
func BuildFor(f *Feature, reg *steps.Registry) registry.BuildFunc {
	return func(b *registry.Builder) {
		b.Configure(registry.SuiteOptions{Tags: f.Tags})
		for _, sc := range f.Scenarios {
			sc := sc
			opts := registry.TestOptions{Tags: sc.Tags}
			if sc.Outline {
				opts.Data = &data.Descriptor{Type: data.KindInline, Data: sc.Examples.Maps()}
			}
			// Outline placeholders become name-template tokens so each
			// iteration's display name carries its row values.
			b.Test(templateName(sc.Name), opts, scenarioBody(f, sc, reg))
		}
	}
}

func scenarioBody(f *Feature, sc *Scenario, reg *steps.Registry) registry.TestFunc {
	return func(t *runtime.T) error {
		for _, st := range f.Background {
			if err := runStep(t, reg, st); err != nil {
				return err
			}
		}
		for _, st := range sc.Steps {
			if err := runStep(t, reg, st); err != nil {
				return err
			}
		}
		return nil
	}
}

func runStep(t *runtime.T, reg *steps.Registry, st *Step) error {
	text := expand(st.Text, t.Data())
	return t.Step(st.Keyword+" "+text, func() error {
		fn, args, err := reg.Match(text)
		if err != nil {
			return err
		}
		if st.Table != nil {
			for _, row := range st.Table.Rows {
				args = append(args, row...)
			}
		}
		return fn(t, args...)
	})
}

// expand substitutes <column> outline placeholders with the current row's
// values. Unknown columns keep their literal text, mirroring name
// interpolation.
func expand(text string, row *data.Row) string {
	if row == nil || !strings.Contains(text, "<") {
		return text
	}
	out := text
	for _, key := range row.Keys() {
		token := "<" + key + ">"
		if !strings.Contains(out, token) {
			continue
		}
		v, _ := row.Lookup(key)
		out = strings.ReplaceAll(out, token, fmt.Sprintf("%v", v))
	}
	return out
}

func templateName(name string) string {
	out := strings.ReplaceAll(name, "<", "{")
	return strings.ReplaceAll(out, ">", "}")
}
