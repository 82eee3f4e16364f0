package assertions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-a-khan/ptf/packages/core/runtime"
)

func newAsserter() (*Asserter, *runtime.T) {
	tt := runtime.New("test", nil, nil, nil)
	return For(tt), tt
}

func TestEqual(t *testing.T) {
	a, _ := newAsserter()
	assert.NoError(t, a.Equal("status", "ok", "ok"))
	assert.Error(t, a.Equal("status", "ok", "error"))
}

func TestEqualNumericCoercion(t *testing.T) {
	a, _ := newAsserter()
	// A JSON-decoded 2 arrives as float64; it must compare equal to int 2.
	assert.NoError(t, a.Equal("count", float64(2), 2))
	assert.NoError(t, a.Equal("count", "2", 2))
	assert.Error(t, a.Equal("count", 2, 3))
}

func TestNotEqual(t *testing.T) {
	a, _ := newAsserter()
	assert.NoError(t, a.NotEqual("status", "ok", "error"))
	assert.Error(t, a.NotEqual("status", "ok", "ok"))
}

func TestContains(t *testing.T) {
	a, _ := newAsserter()
	assert.NoError(t, a.Contains("body", "hello world", "world"))
	assert.NoError(t, a.Contains("roles", []string{"admin", "viewer"}, "admin"))
	assert.NoError(t, a.Contains("ids", []any{float64(1), float64(2)}, 2))
	assert.Error(t, a.Contains("body", "hello", "bye"))
}

func TestMatches(t *testing.T) {
	a, _ := newAsserter()
	assert.NoError(t, a.Matches("email", "alice@example.com", `^[^@]+@example\.com$`))
	assert.Error(t, a.Matches("email", "alice@other.com", `^[^@]+@example\.com$`))
	assert.Error(t, a.Matches("email", "x", `[`))
}

func TestNumericComparisons(t *testing.T) {
	a, _ := newAsserter()
	assert.NoError(t, a.GreaterThan("total", 10, 5))
	assert.Error(t, a.GreaterThan("total", 5, 10))
	assert.NoError(t, a.LessThan("latency", "99", 100))
	assert.Error(t, a.LessThan("latency", "abc", 100))
}

func TestJSONPath(t *testing.T) {
	a, _ := newAsserter()
	doc := `{"user":{"name":"alice","roles":["admin"]},"count":2}`

	assert.NoError(t, a.JSONPath(doc, "user.name", "alice"))
	assert.NoError(t, a.JSONPath(doc, "count", 2))
	assert.Error(t, a.JSONPath(doc, "user.name", "bob"))
	assert.Error(t, a.JSONPath(doc, "user.missing", "x"))
}

func TestChecksRecordActions(t *testing.T) {
	a, tt := newAsserter()
	_ = a.Equal("status", "ok", "ok")
	_ = a.Equal("status", "ok", "error")

	steps := tt.Steps()
	require.Len(t, steps, 2)
	// Passing checks are recorded too, so the report shows what was compared.
	assert.True(t, steps[0].Passed)
	assert.Equal(t, "assert status equals", steps[0].Name)
	assert.False(t, steps[1].Passed)
}
