// Package gherkin parses the supported subset of the Gherkin language:
// Feature, Background, Scenario, Scenario Outline with Examples, step data
// tables, and tags. Parsed features are bridged into the registration model,
// so a feature file and a Go spec unit are interchangeable to the runner.
package gherkin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Parser builds a Feature from a token stream.
type Parser struct {
	lexer *Lexer
	path  string
	tok   Token
}

// ParseFile reads and parses one feature file.
func ParseFile(path string) (*Feature, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading feature file: %w", err)
	}
	return Parse(string(raw), path)
}

// Parse parses feature source. path is used in error messages only.
func Parse(src, path string) (*Feature, error) {
	p := &Parser{lexer: NewLexer(src), path: path}
	p.next()
	return p.parseFeature()
}

func (p *Parser) next() {
	p.tok = p.lexer.NextToken()
}

func (p *Parser) errorf(line int, format string, args ...any) error {
	return fmt.Errorf("%s:%d: %s", p.path, line, fmt.Sprintf(format, args...))
}

func (p *Parser) parseFeature() (*Feature, error) {
	f := &Feature{Path: p.path}

	if p.tok.Type == TokenTags {
		f.Tags = p.tok.Tags
		p.next()
	}
	if p.tok.Type != TokenFeature {
		return nil, p.errorf(p.tok.Line, "expected Feature, got %q", p.tok.Value)
	}
	f.Name = p.tok.Value
	if f.Name == "" {
		return nil, p.errorf(p.tok.Line, "feature has no name")
	}
	p.next()

	// Free text under the Feature line is its description.
	var desc []string
	for p.tok.Type == TokenText {
		desc = append(desc, p.tok.Value)
		p.next()
	}
	f.Description = strings.Join(desc, "\n")

	for p.tok.Type != TokenEOF {
		var pendingTags []string
		if p.tok.Type == TokenTags {
			pendingTags = p.tok.Tags
			p.next()
		}

		switch p.tok.Type {
		case TokenBackground:
			if len(f.Scenarios) > 0 {
				return nil, p.errorf(p.tok.Line, "Background must precede all scenarios")
			}
			if f.Background != nil {
				return nil, p.errorf(p.tok.Line, "duplicate Background")
			}
			p.next()
			steps, err := p.parseSteps()
			if err != nil {
				return nil, err
			}
			f.Background = steps
		case TokenScenario, TokenScenarioOutline:
			sc, err := p.parseScenario(pendingTags)
			if err != nil {
				return nil, err
			}
			f.Scenarios = append(f.Scenarios, sc)
		case TokenEOF:
			if len(pendingTags) > 0 {
				return nil, p.errorf(p.tok.Line, "dangling tags at end of file")
			}
		default:
			return nil, p.errorf(p.tok.Line, "unexpected %q", p.tok.Value)
		}
	}

	if len(f.Scenarios) == 0 {
		return nil, p.errorf(1, "feature %q has no scenarios", f.Name)
	}
	return f, nil
}

func (p *Parser) parseScenario(tags []string) (*Scenario, error) {
	sc := &Scenario{
		Name:    p.tok.Value,
		Tags:    tags,
		Outline: p.tok.Type == TokenScenarioOutline,
		Line:    p.tok.Line,
	}
	if sc.Name == "" {
		return nil, p.errorf(p.tok.Line, "scenario has no name")
	}
	p.next()

	steps, err := p.parseSteps()
	if err != nil {
		return nil, err
	}
	sc.Steps = steps
	if len(sc.Steps) == 0 {
		return nil, p.errorf(sc.Line, "scenario %q has no steps", sc.Name)
	}

	if p.tok.Type == TokenExamples {
		if !sc.Outline {
			return nil, p.errorf(p.tok.Line, "Examples outside a Scenario Outline")
		}
		p.next()
		table, err := p.parseTable()
		if err != nil {
			return nil, err
		}
		sc.Examples = table
	}
	if sc.Outline && sc.Examples == nil {
		return nil, p.errorf(sc.Line, "Scenario Outline %q has no Examples", sc.Name)
	}
	return sc, nil
}

func (p *Parser) parseSteps() ([]*Step, error) {
	var steps []*Step
	for p.tok.Type == TokenStep {
		step := &Step{Keyword: p.tok.Keyword, Text: p.tok.Value, Line: p.tok.Line}
		p.next()
		if p.tok.Type == TokenTableRow {
			table, err := p.parseTable()
			if err != nil {
				return nil, err
			}
			step.Table = table
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (p *Parser) parseTable() (*Table, error) {
	if p.tok.Type != TokenTableRow {
		return nil, p.errorf(p.tok.Line, "expected table row")
	}
	table := &Table{Header: p.tok.Cells}
	p.next()
	for p.tok.Type == TokenTableRow {
		if len(p.tok.Cells) != len(table.Header) {
			return nil, p.errorf(p.tok.Line, "table row has %d cells, header has %d", len(p.tok.Cells), len(table.Header))
		}
		table.Rows = append(table.Rows, p.tok.Cells)
		p.next()
	}
	return table, nil
}

// Discover parses every .feature file under root.
func Discover(root string) ([]*Feature, error) {
	var features []*Feature
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".feature") {
			return nil
		}
		f, perr := ParseFile(path)
		if perr != nil {
			return perr
		}
		features = append(features, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return features, nil
}
