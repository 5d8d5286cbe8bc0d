package mutation

import (
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/trackline/internal/issue"
)

type Status int

const (
	StatusInFlight Status = iota
	StatusConfirmed
	StatusRolledBack
	StatusSuperseded
)

func (s Status) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusRolledBack:
		return "rolled_back"
	case StatusSuperseded:
		return "superseded"
	default:
		return "in_flight"
	}
}

// pendingMutation is one optimistic move waiting for the server.
type pendingMutation struct {
	correlationID string
	issueID       string
	previous      issue.Issue
	desired       issue.Issue
	// neighbours renumbered together with the move, before and after.
	bumpedBefore []issue.Issue
	bumpedAfter  []issue.Issue
	status       Status
}

func newPendingMutation(previous, desired issue.Issue) *pendingMutation {
	return &pendingMutation{
		correlationID: ulid.Make().String(),
		issueID:       previous.ID,
		previous:      previous,
		desired:       desired,
		status:        StatusInFlight,
	}
}

// chain tracks the mutations of one issue that have not settled yet. base is
// what a failed latest mutation restores: the value before the first
// mutation, or the result of a superseded one the server accepted. origin is
// always the value before the first mutation; its column still lists the
// issue until it is refetched.
type chain struct {
	latest   *pendingMutation
	base     issue.Issue
	origin   issue.Issue
	inFlight int
}

// PendingChange is published when an issue starts or stops having a mutation
// in flight.
type PendingChange struct {
	IssueID string
	Pending bool
}
