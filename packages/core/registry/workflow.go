package registry

import "fmt"

// workflowState auto-wires the tests of one workflow suite: each ordinary
// test gets a position marker tag and a dependsOn on the previous test's
// marker, so the chain gates itself through the dependency tracker.
type workflowState struct {
	step       int
	lastMarker string
}

func (w *workflowState) wire(suiteName string, opts *TestOptions) {
	w.step++
	marker := fmt.Sprintf("%s:step-%d", suiteName, w.step)
	opts.Tags = append(opts.Tags, marker)
	if w.lastMarker != "" {
		opts.DependsOn = append(opts.DependsOn, w.lastMarker)
	}
	w.lastMarker = marker
}

// Workflow opens a serial suite whose tests form a dependency chain in
// registration order. Cleanup tests registered inside it are deferred to the
// end of the suite and run unconditionally, even after upstream failures.
func (b *Builder) Workflow(name string, opts SuiteOptions, body func()) {
	opts.Mode = ModeSerial

	parent := b.top()
	s := &Suite{Name: name, Options: opts, Parent: parent}
	parent.Children = append(parent.Children, s)

	b.stack = append(b.stack, s)
	b.wf = append(b.wf, &workflowState{})
	body()
	b.stack = b.stack[:len(b.stack)-1]
	b.wf = b.wf[:len(b.wf)-1]

	deferCleanupTests(s)
}

// deferCleanupTests moves cleanup-flagged direct tests to the end of the
// child list, preserving their relative order.
func deferCleanupTests(s *Suite) {
	var ordinary, cleanup []Child
	for _, c := range s.Children {
		if t, ok := c.(*Test); ok && t.Options.Cleanup {
			cleanup = append(cleanup, c)
			continue
		}
		ordinary = append(ordinary, c)
	}
	if len(cleanup) == 0 {
		return
	}
	s.Children = append(ordinary, cleanup...)
}
