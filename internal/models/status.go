package models

// Status is a document's position in the processing lifecycle.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// transitions lists, for every target status, the statuses it may be entered from.
// Self-transitions exist because concurrent regenerations of one document
// interleave their writes and because sweeps may run more than once.
var transitions = map[Status][]Status{
	StatusQueued:     nil,
	StatusProcessing: {StatusQueued, StatusProcessing, StatusDone, StatusError},
	StatusDone:       {StatusProcessing, StatusDone},
	StatusError:      {StatusQueued, StatusProcessing, StatusError},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Predecessors returns the statuses from which a document may move to s.
func Predecessors(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	for _, p := range transitions[to] {
		if p == from {
			return true
		}
	}
	return false
}
