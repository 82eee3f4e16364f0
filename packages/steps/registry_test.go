package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-a-khan/ptf/packages/core/runtime"
)

func TestMatchExact(t *testing.T) {
	r := NewRegistry()
	called := false
	require.NoError(t, r.Register("the user is on the login page", func(tt *runtime.T, args ...string) error {
		called = true
		return nil
	}))

	fn, args, err := r.Match("the user is on the login page")
	require.NoError(t, err)
	assert.Empty(t, args)
	require.NoError(t, fn(nil))
	assert.True(t, called)
}

func TestMatchPlaceholders(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("the user logs in as {username} with password {password}", nil2))

	_, args, err := r.Match(`the user logs in as "alice" with password secret123`)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "secret123"}, args)
}

func TestMatchQuotesStripped(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("the title is {title}", nil2))

	_, args, err := r.Match(`the title is "My Dashboard"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"My Dashboard"}, args)
}

func TestMatchFirstRegisteredWins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("the user clicks {target}", func(tt *runtime.T, args ...string) error {
		return nil
	}))
	require.NoError(t, r.Register("the user clicks submit", func(tt *runtime.T, args ...string) error {
		t.Fatal("later pattern must not win")
		return nil
	}))

	_, args, err := r.Match("the user clicks submit")
	require.NoError(t, err)
	assert.Equal(t, []string{"submit"}, args)
}

func TestMatchUndefinedStep(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Match("the user does something unregistered")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no step definition matches")
}

func TestRegisterNilHandler(t *testing.T) {
	r := NewRegistry()
	// A nil handler is rejected at registration, not at match time.
	err := r.Register("orphan step", nil)
	require.Error(t, err)
}

func TestMatchTrimsWhitespace(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("the cart is empty", nil2))

	_, _, err := r.Match("  the cart is empty  ")
	assert.NoError(t, err)
}

func TestPatterns(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("first", nil2))
	require.NoError(t, r.Register("second", nil2))
	assert.Equal(t, []string{"first", "second"}, r.Patterns())
}

func TestRegexMetaInPatternIsLiteral(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("the total is $10 (incl. tax)", nil2))

	_, _, err := r.Match("the total is $10 (incl. tax)")
	assert.NoError(t, err)
	_, _, err = r.Match("the total is X10 incl tax")
	assert.Error(t, err)
}

func nil2(tt *runtime.T, args ...string) error { return nil }
