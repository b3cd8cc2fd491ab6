package session

// State is the session state machine position. The session state is
// the single source of truth: everything the operator surface shows
// is a pure projection of it (see View).
type State int

const (
	StateIdle State = iota
	StateTemplatePending
	StateCountingDown
	StatePhotographerWaiting
	StateCapturing
	StateRecovering
	StateSlotSaved
	StateRetakeReview
	StateComposing
	StateComplete
	StateAborted
)

var stateNames = map[State]string{
	StateIdle:                "idle",
	StateTemplatePending:     "template-pending",
	StateCountingDown:        "counting-down",
	StatePhotographerWaiting: "photographer-waiting",
	StateCapturing:           "capturing",
	StateRecovering:          "recovering",
	StateSlotSaved:           "slot-saved",
	StateRetakeReview:        "retake-review",
	StateComposing:           "composing",
	StateComplete:            "complete",
	StateAborted:             "aborted",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Terminal reports whether the session has finished.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateAborted
}

// CaptureActive reports whether a slot capture cycle is in progress
// (countdown through recovery). Stop requests in these states follow
// the restart-current-slot path rather than clearing the session.
func (s State) CaptureActive() bool {
	switch s {
	case StateCountingDown, StatePhotographerWaiting, StateCapturing, StateRecovering, StateSlotSaved:
		return true
	default:
		return false
	}
}
