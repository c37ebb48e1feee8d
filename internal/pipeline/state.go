package pipeline

import "fmt"

// State is a run's lifecycle state.
type State string

const (
	StatePlanning   State = "planning"
	StateRendering  State = "rendering"
	StateAssembling State = "assembling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// allowedTransitions lists legal moves. The empty state is a run that has not
// started; resumed runs may enter rendering directly.
var allowedTransitions = map[State][]State{
	"":              {StatePlanning, StateRendering},
	StatePlanning:   {StateRendering, StateFailed, StateCancelled},
	StateRendering:  {StateAssembling, StateFailed, StateCancelled},
	StateAssembling: {StateCompleted, StateFailed},
}

func transition(from, to State) error {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("illegal run transition %q -> %q", from, to)
}

// SegmentState is the lifecycle of one segment inside a run.
type SegmentState string

const (
	SegmentPending   SegmentState = "pending"
	SegmentRendering SegmentState = "rendering"
	SegmentRetrying  SegmentState = "retrying"
	SegmentRendered  SegmentState = "rendered"
	SegmentFailed    SegmentState = "failed"
	SegmentSkipped   SegmentState = "skipped"
	SegmentCancelled SegmentState = "cancelled"
)
