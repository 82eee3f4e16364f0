package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-a-khan/ptf/packages/core/runtime"
	"github.com/mohammed-a-khan/ptf/packages/data"
)

func noop(t *runtime.T) error { return nil }

func TestBuildNestedTree(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register("checkout.spec", func(b *Builder) {
		b.Describe("Checkout", SuiteOptions{Tags: []string{"checkout"}}, func() {
			b.Test("add to cart", TestOptions{}, noop)
			b.Describe("Payment", SuiteOptions{}, func() {
				b.Test("pay by card", TestOptions{Tags: []string{"payment"}}, noop)
			})
		})
	})

	root, err := Build("checkout.spec")
	require.NoError(t, err)
	assert.Equal(t, "checkout.spec", root.Name)

	suites := root.Suites()
	require.Len(t, suites, 1)
	checkout := suites[0]
	require.Len(t, checkout.Tests(), 1)
	require.Len(t, checkout.Suites(), 1)

	pay := checkout.Suites()[0].Tests()[0]
	assert.Equal(t, "checkout.spec/Checkout/Payment/pay by card", pay.ID())
	assert.Equal(t, []string{"checkout.spec", "Checkout", "Payment"}, pay.Path)
	assert.ElementsMatch(t, []string{"payment", "checkout"}, pay.AllTags())
}

func TestBuildIsFreshPerCall(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register("fresh.spec", func(b *Builder) {
		b.Describe("S", SuiteOptions{}, func() {
			b.Test("a", TestOptions{}, noop)
		})
	})

	first, err := Build("fresh.spec")
	require.NoError(t, err)
	second, err := Build("fresh.spec")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NotSame(t, first.Suites()[0], second.Suites()[0])
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register("dup.spec", func(b *Builder) {})
	assert.Panics(t, func() {
		Register("dup.spec", func(b *Builder) {})
	})
}

func TestBuildUnknownUnit(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	_, err := Build("nope.spec")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown unit")
}

func TestTestWithoutBodyFailsBuild(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register("broken.spec", func(b *Builder) {
		b.Describe("S", SuiteOptions{}, func() {
			b.Test("no body", TestOptions{}, nil)
		})
	})

	_, err := Build("broken.spec")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no body")
}

func TestUnitsPreserveOrder(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register("b.spec", func(b *Builder) {})
	Register("a.spec", func(b *Builder) {})
	assert.Equal(t, []string{"b.spec", "a.spec"}, Units())
}

func TestModeInheritance(t *testing.T) {
	b := NewBuilder("u")
	b.Describe("Serial", SuiteOptions{Mode: ModeSerial}, func() {
		b.Describe("Inner", SuiteOptions{}, func() {})
		b.Describe("Override", SuiteOptions{Mode: ModeParallel}, func() {})
	})
	require.NoError(t, b.Err())

	serial := b.Root().Suites()[0]
	assert.Equal(t, ModeSerial, serial.Mode())
	assert.Equal(t, ModeSerial, serial.Suites()[0].Mode())
	assert.Equal(t, ModeParallel, serial.Suites()[1].Mode())
}

func TestEnabledAndFixmePropagation(t *testing.T) {
	b := NewBuilder("u")
	b.Describe("Off", SuiteOptions{Enabled: Bool(false)}, func() {
		b.Describe("Child", SuiteOptions{}, func() {
			b.Test("t", TestOptions{}, noop)
		})
	})
	b.Describe("Broken", SuiteOptions{Fixme: true}, func() {
		b.Test("t", TestOptions{}, noop)
	})
	require.NoError(t, b.Err())

	off := b.Root().Suites()[0]
	assert.False(t, off.Suites()[0].Enabled())
	assert.True(t, off.Suites()[0].Tests()[0].Disabled())

	broken := b.Root().Suites()[1]
	assert.True(t, broken.Fixme())
}

func TestEffectiveTimeoutAndRetries(t *testing.T) {
	b := NewBuilder("u")
	b.Describe("S", SuiteOptions{Timeout: 10 * time.Second, Retries: Int(2)}, func() {
		b.Test("inherits", TestOptions{}, noop)
		b.Test("overrides", TestOptions{Timeout: time.Second, Retries: Int(0)}, noop)
	})
	require.NoError(t, b.Err())

	tests := b.Root().Suites()[0].Tests()
	assert.Equal(t, 10*time.Second, tests[0].EffectiveTimeout(30*time.Second))
	assert.Equal(t, 2, tests[0].EffectiveRetries(0))
	assert.Equal(t, time.Second, tests[1].EffectiveTimeout(30*time.Second))
	assert.Equal(t, 0, tests[1].EffectiveRetries(5))
}

func TestSuiteDataIterationOptIn(t *testing.T) {
	src := &data.Descriptor{Type: data.KindInline, Data: []map[string]any{{"u": "a"}}}

	b := NewBuilder("u")
	b.Describe("S", SuiteOptions{Data: src}, func() {
		b.Test("undeclared", TestOptions{}, noop)
		b.Test("columns", TestOptions{Columns: []string{"u"}}, noop)
		b.Test("opt out", TestOptions{UseData: Bool(false), Columns: []string{"u"}}, noop)
		b.Test("opt in", TestOptions{UseData: Bool(true)}, noop)
		b.Test("own source", TestOptions{Data: src}, noop)
	})
	require.NoError(t, b.Err())

	tests := b.Root().Suites()[0].Tests()
	assert.False(t, tests[0].ShouldIterate())
	assert.Nil(t, tests[0].DataSource())
	assert.True(t, tests[1].ShouldIterate())
	assert.Same(t, src, tests[1].DataSource())
	assert.False(t, tests[2].ShouldIterate())
	assert.True(t, tests[3].ShouldIterate())
	assert.True(t, tests[4].ShouldIterate())
}

func TestConfigureMergesIntoOpenSuite(t *testing.T) {
	b := NewBuilder("u")
	b.Describe("S", SuiteOptions{Tags: []string{"one"}}, func() {
		b.Configure(SuiteOptions{Mode: ModeSerial, Tags: []string{"two"}})
	})
	require.NoError(t, b.Err())

	s := b.Root().Suites()[0]
	assert.Equal(t, ModeSerial, s.Options.Mode)
	assert.Equal(t, []string{"one", "two"}, s.Options.Tags)
}

func TestWorkflowWiresDependencyChain(t *testing.T) {
	b := NewBuilder("u")
	b.Workflow("Order", SuiteOptions{}, func() {
		b.Test("create", TestOptions{}, noop)
		b.Cleanup("delete order", TestOptions{}, noop)
		b.Test("ship", TestOptions{}, noop)
	})
	require.NoError(t, b.Err())

	wf := b.Root().Suites()[0]
	assert.Equal(t, ModeSerial, wf.Mode())

	tests := wf.Tests()
	require.Len(t, tests, 3)

	// Cleanup tests are deferred to the end, outside the dependency chain.
	assert.Equal(t, []string{"create", "ship", "delete order"}, []string{
		tests[0].Name, tests[1].Name, tests[2].Name,
	})
	assert.Empty(t, tests[0].Options.DependsOn)
	assert.Equal(t, []string{"Order:step-1"}, tests[1].Options.DependsOn)
	assert.True(t, tests[2].Options.Cleanup)
	assert.Empty(t, tests[2].Options.DependsOn)
}

func TestFindTestAndSuite(t *testing.T) {
	b := NewBuilder("unit")
	b.Describe("Login", SuiteOptions{}, func() {
		b.Test("valid credentials", TestOptions{}, noop)
	})
	require.NoError(t, b.Err())
	root := b.Root()

	found := FindTest(root, "unit/Login/valid credentials")
	require.NotNil(t, found)
	assert.Equal(t, "valid credentials", found.Name)
	assert.Nil(t, FindTest(root, "unit/Login/missing"))

	s := FindSuite(root, []string{"unit", "Login"})
	require.NotNil(t, s)
	assert.Equal(t, "Login", s.Name)
	assert.Nil(t, FindSuite(root, []string{"other", "Login"}))
}
