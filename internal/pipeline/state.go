package pipeline

import "fmt"

// State is a stage of a sync run. Unchanged, Uploading and Rewriting are
// per-asset stages and only show up in logs and OnState callbacks.
type State int

const (
	Idle State = iota
	Loaded
	Scanning
	Unchanged
	Uploading
	Rewriting
	Persisted
	Swept
	Done
)

var stateNames = [...]string{
	Idle:      "idle",
	Loaded:    "loaded",
	Scanning:  "scanning",
	Unchanged: "unchanged",
	Uploading: "uploading",
	Rewriting: "rewriting",
	Persisted: "persisted",
	Swept:     "swept",
	Done:      "done",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}
