package runtime

import "fmt"

// SignalKind distinguishes the control-flow signals a test body may raise.
type SignalKind int

const (
	// SignalSkip halts the body and marks the result skipped.
	SignalSkip SignalKind = iota
	// SignalFixme halts the body and marks the result fixme.
	SignalFixme
)

// Signal is the typed marker raised (via panic) by T.Skip and T.Fixme so the
// runner can tell intentional control flow from a real failure. It is never
// reported as an error.
type Signal struct {
	Kind   SignalKind
	Reason string
}

func (s *Signal) Error() string {
	switch s.Kind {
	case SignalFixme:
		return fmt.Sprintf("fixme: %s", s.Reason)
	default:
		return fmt.Sprintf("skipped: %s", s.Reason)
	}
}

// AsSignal extracts a control-flow signal from a recovered panic value.
func AsSignal(v any) (*Signal, bool) {
	s, ok := v.(*Signal)
	return s, ok
}
