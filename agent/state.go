package agent

// State is a ClaimAgent lifecycle state
type State int

const (
	Monitoring State = iota
	Detecting
	Decrypting
	Authorizing
	Settling
	Done
	Failed
)

var stateNames = [...]string{
	Monitoring:  "MONITORING",
	Detecting:   "DETECTING",
	Decrypting:  "DECRYPTING",
	Authorizing: "AUTHORIZING",
	Settling:    "SETTLING",
	Done:        "DONE",
	Failed:      "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == Done || s == Failed
}
