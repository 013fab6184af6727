package refresh

// State is the driver's position within a refresh cycle.
type State int

const (
	Idle State = iota
	Collecting
	Scoring
	Alerting
	Emitting
	Waiting
	Done
)

var stateNames = [...]string{
	Idle:       "idle",
	Collecting: "collecting",
	Scoring:    "scoring",
	Alerting:   "alerting",
	Emitting:   "emitting",
	Waiting:    "waiting",
	Done:       "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
