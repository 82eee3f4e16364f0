package gherkin

// Feature is one parsed .feature file.
type Feature struct {
	Path        string
	Name        string
	Description string
	Tags        []string
	Background  []*Step
	Scenarios   []*Scenario
}

// Scenario is one Scenario or Scenario Outline block.
type Scenario struct {
	Name     string
	Tags     []string
	Steps    []*Step
	Outline  bool
	Examples *Table
	Line     int
}

// Step is one Given/When/Then line, with its data table when present.
type Step struct {
	Keyword string
	Text    string
	Table   *Table
	Line    int
}

// Table is a pipe-delimited block: an Examples table or a step argument.
type Table struct {
	Header []string
	Rows   [][]string
}

// Maps converts the table into row maps keyed by header, the shape the data
// iterator consumes.
func (t *Table) Maps() []map[string]any {
	out := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		m := make(map[string]any, len(t.Header))
		for i, col := range t.Header {
			if i < len(row) {
				m[col] = row[i]
			}
		}
		out = append(out, m)
	}
	return out
}
