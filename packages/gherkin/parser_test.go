package gherkin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginFeature = `@auth @smoke
Feature: Login
  Users authenticate before reaching the dashboard.

  Background:
    Given the user is on the login page

  @happy
  Scenario: Valid credentials
    When the user logs in as "alice" with password "secret"
    Then the dashboard is shown

  Scenario Outline: Invalid credentials for <user>
    When the user logs in as "<user>" with password "wrong"
    Then an error message is shown

    Examples:
      | user  |
      | alice |
      | bob   |
`

func TestParseFeature(t *testing.T) {
	f, err := Parse(loginFeature, "login.feature")
	require.NoError(t, err)

	assert.Equal(t, "Login", f.Name)
	assert.Equal(t, []string{"auth", "smoke"}, f.Tags)
	assert.Equal(t, "Users authenticate before reaching the dashboard.", f.Description)

	require.Len(t, f.Background, 1)
	assert.Equal(t, "Given", f.Background[0].Keyword)
	assert.Equal(t, "the user is on the login page", f.Background[0].Text)

	require.Len(t, f.Scenarios, 2)

	valid := f.Scenarios[0]
	assert.Equal(t, "Valid credentials", valid.Name)
	assert.Equal(t, []string{"happy"}, valid.Tags)
	assert.False(t, valid.Outline)
	require.Len(t, valid.Steps, 2)
	assert.Equal(t, "When", valid.Steps[0].Keyword)

	outline := f.Scenarios[1]
	assert.True(t, outline.Outline)
	require.NotNil(t, outline.Examples)
	assert.Equal(t, []string{"user"}, outline.Examples.Header)
	require.Len(t, outline.Examples.Rows, 2)
	assert.Equal(t, "bob", outline.Examples.Rows[1][0])
}

func TestParseStepTable(t *testing.T) {
	src := `Feature: Cart
  Scenario: Bulk add
    Given the cart contains
      | sku  | qty |
      | A-1  | 2   |
      | B-9  | 1   |
`
	f, err := Parse(src, "cart.feature")
	require.NoError(t, err)

	step := f.Scenarios[0].Steps[0]
	require.NotNil(t, step.Table)
	assert.Equal(t, []string{"sku", "qty"}, step.Table.Header)
	assert.Equal(t, [][]string{{"A-1", "2"}, {"B-9", "1"}}, step.Table.Rows)
}

func TestTableMaps(t *testing.T) {
	tbl := &Table{Header: []string{"user", "role"}, Rows: [][]string{{"alice", "admin"}}}
	maps := tbl.Maps()
	require.Len(t, maps, 1)
	assert.Equal(t, "alice", maps[0]["user"])
	assert.Equal(t, "admin", maps[0]["role"])
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			"no feature keyword",
			"Scenario: orphan\n  Given a step\n",
			"expected Feature",
		},
		{
			"feature without name",
			"Feature:\n  Scenario: s\n    Given a step\n",
			"feature has no name",
		},
		{
			"no scenarios",
			"Feature: Empty\n",
			"has no scenarios",
		},
		{
			"scenario without steps",
			"Feature: F\n  Scenario: empty\n",
			"has no steps",
		},
		{
			"background after scenario",
			"Feature: F\n  Scenario: s\n    Given a step\n  Background:\n    Given setup\n",
			"Background must precede",
		},
		{
			"duplicate background",
			"Feature: F\n  Background:\n    Given a\n  Background:\n    Given b\n  Scenario: s\n    Given c\n",
			"duplicate Background",
		},
		{
			"outline without examples",
			"Feature: F\n  Scenario Outline: o\n    Given a <x>\n",
			"has no Examples",
		},
		{
			"examples on plain scenario",
			"Feature: F\n  Scenario: s\n    Given a step\n    Examples:\n      | x |\n      | 1 |\n",
			"Examples outside a Scenario Outline",
		},
		{
			"ragged table",
			"Feature: F\n  Scenario: s\n    Given rows\n      | a | b |\n      | 1 |\n",
			"table row has 1 cells",
		},
		{
			"dangling tags",
			"Feature: F\n  Scenario: s\n    Given a step\n  @orphan\n",
			"dangling tags",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src, "bad.feature")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseErrorIncludesPathAndLine(t *testing.T) {
	_, err := Parse("Feature: F\n  Nonsense here\n  Scenario: s\n    Given a step\n", "weird.feature")
	// Free text directly under the feature is its description, so this parses.
	require.NoError(t, err)

	_, err = Parse("Scenario: orphan\n  Given a step\n", "orphan.feature")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orphan.feature:1")
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.feature"),
		[]byte("Feature: A\n  Scenario: s\n    Given a step\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.feature"),
		[]byte("Feature: B\n  Scenario: s\n    Given a step\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	features, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, features, 2)
}

func TestDiscoverPropagatesParseError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.feature"),
		[]byte("not gherkin at all\n"), 0o644))

	_, err := Discover(dir)
	require.Error(t, err)
}
