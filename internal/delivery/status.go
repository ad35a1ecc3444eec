package delivery

import "slices"

// Status is the delivery state of a message with respect to one
// recipient.
type Status string

const (
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Read      Status = "read"
)

// validTransitions defines the strictly forward-only lifecycle. There
// is no jump from Sent straight to Read: a read on an undelivered
// message records Delivered and Read in the same transition.
var validTransitions = map[Status][]Status{
	Sent:      {Delivered},
	Delivered: {Read},
	Read:      {},
}

// CanAdvance reports whether moving from s to next is a legal single
// transition.
func (s Status) CanAdvance(next Status) bool {
	return slices.Contains(validTransitions[s], next)
}

// Rank orders statuses for regression checks: sent < delivered < read.
func (s Status) Rank() int {
	switch s {
	case Delivered:
		return 1
	case Read:
		return 2
	default:
		return 0
	}
}
