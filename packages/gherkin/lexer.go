package gherkin

import "strings"

type TokenType int

const (
	TokenEOF TokenType = iota
	TokenFeature
	TokenBackground
	TokenScenario
	TokenScenarioOutline
	TokenExamples
	TokenStep
	TokenTags
	TokenTableRow
	TokenText
)

type Token struct {
	Type    TokenType
	Value   string
	Keyword string
	Cells   []string
	Tags    []string
	Line    int
}

// Lexer tokenizes a feature source line by line. Gherkin is line-oriented,
// so there is no character-level state to track beyond trimming.
type Lexer struct {
	lines []string
	pos   int
}

func NewLexer(input string) *Lexer {
	return &Lexer{lines: strings.Split(input, "\n")}
}

var stepKeywords = []string{"Given ", "When ", "Then ", "And ", "But ", "* "}

func (l *Lexer) NextToken() Token {
	for l.pos < len(l.lines) {
		line := strings.TrimSpace(l.lines[l.pos])
		l.pos++
		num := l.pos

		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "@"):
			return Token{Type: TokenTags, Tags: parseTags(line), Line: num}
		case strings.HasPrefix(line, "Feature:"):
			return Token{Type: TokenFeature, Value: strings.TrimSpace(strings.TrimPrefix(line, "Feature:")), Line: num}
		case strings.HasPrefix(line, "Background:"):
			return Token{Type: TokenBackground, Line: num}
		case strings.HasPrefix(line, "Scenario Outline:"):
			return Token{Type: TokenScenarioOutline, Value: strings.TrimSpace(strings.TrimPrefix(line, "Scenario Outline:")), Line: num}
		case strings.HasPrefix(line, "Scenario Template:"):
			return Token{Type: TokenScenarioOutline, Value: strings.TrimSpace(strings.TrimPrefix(line, "Scenario Template:")), Line: num}
		case strings.HasPrefix(line, "Scenario:"):
			return Token{Type: TokenScenario, Value: strings.TrimSpace(strings.TrimPrefix(line, "Scenario:")), Line: num}
		case strings.HasPrefix(line, "Example:"):
			return Token{Type: TokenScenario, Value: strings.TrimSpace(strings.TrimPrefix(line, "Example:")), Line: num}
		case strings.HasPrefix(line, "Examples:"):
			return Token{Type: TokenExamples, Line: num}
		case strings.HasPrefix(line, "|"):
			return Token{Type: TokenTableRow, Cells: parseCells(line), Line: num}
		}

		for _, kw := range stepKeywords {
			if strings.HasPrefix(line, kw) {
				return Token{
					Type:    TokenStep,
					Keyword: strings.TrimSpace(kw),
					Value:   strings.TrimSpace(strings.TrimPrefix(line, kw)),
					Line:    num,
				}
			}
		}
		return Token{Type: TokenText, Value: line, Line: num}
	}
	return Token{Type: TokenEOF, Line: len(l.lines)}
}

func parseTags(line string) []string {
	var tags []string
	for _, field := range strings.Fields(line) {
		if strings.HasPrefix(field, "@") && len(field) > 1 {
			tags = append(tags, strings.TrimPrefix(field, "@"))
		}
	}
	return tags
}

func parseCells(line string) []string {
	trimmed := strings.Trim(line, "|")
	parts := strings.Split(trimmed, "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}
