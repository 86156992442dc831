package pipeline

// State is a step of an event's life through the pipeline.
type State int

const (
	StateReceived State = iota
	StateAuthenticated
	StateShapeValid
	StateAdmitted
	StateAcknowledged
	StateDispatched
	StateDone
	StateRejectedAuth
	StateRejectedShape
	StateRejectedDuplicate
	StateRejectedRate
	StateIgnoredNotMentioned
	StateIgnoredCooldown
	StateFailed

	numStates
)

var stateNames = [numStates]string{
	StateReceived:            "RECEIVED",
	StateAuthenticated:       "AUTHENTICATED",
	StateShapeValid:          "SHAPE_VALID",
	StateAdmitted:            "ADMITTED",
	StateAcknowledged:        "ACKNOWLEDGED",
	StateDispatched:          "DISPATCHED",
	StateDone:                "DONE",
	StateRejectedAuth:        "REJECTED_AUTH",
	StateRejectedShape:       "REJECTED_SHAPE",
	StateRejectedDuplicate:   "REJECTED_DUPLICATE",
	StateRejectedRate:        "REJECTED_RATE",
	StateIgnoredNotMentioned: "IGNORED_NOT_MENTIONED",
	StateIgnoredCooldown:     "IGNORED_COOLDOWN",
	StateFailed:              "FAILED",
}

func (s State) String() string {
	if s < 0 || s >= numStates {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFailed,
		StateRejectedAuth, StateRejectedShape, StateRejectedDuplicate, StateRejectedRate,
		StateIgnoredNotMentioned, StateIgnoredCooldown:
		return true
	}
	return false
}

// MarshalText lets states appear by name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
