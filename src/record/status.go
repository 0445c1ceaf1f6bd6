package record

import "strings"

// Status is a record's lifecycle state. Reviewers move records forward
// through the triage pipeline; submitters never change status directly.
type Status string

const (
	StatusSubmitted      Status = "Submitted"
	StatusUnderReview    Status = "UnderReview"
	StatusInProgress     Status = "InProgress"
	StatusResolved       Status = "Resolved"
	StatusRejected       Status = "Rejected"
	StatusMoreInfoNeeded Status = "MoreInfoNeeded"
)

var statusNames = map[string]Status{
	"submitted":      StatusSubmitted,
	"underreview":    StatusUnderReview,
	"inprogress":     StatusInProgress,
	"resolved":       StatusResolved,
	"rejected":       StatusRejected,
	"moreinfoneeded": StatusMoreInfoNeeded,
}

func ParseStatus(s string) (Status, bool) {
	st, ok := statusNames[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}

// forward transitions per the triage pipeline; terminal states only allow
// self-transitions.
var statusNext = map[Status][]Status{
	StatusSubmitted:   {StatusUnderReview, StatusInProgress, StatusResolved, StatusRejected, StatusMoreInfoNeeded},
	StatusUnderReview: {StatusInProgress, StatusResolved, StatusRejected, StatusMoreInfoNeeded},
	StatusInProgress:  {StatusResolved, StatusRejected, StatusMoreInfoNeeded},
}

// CanTransition reports whether a reviewer may move a record from one status
// to another. Same-status writes are always allowed (meta-only updates).
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range statusNext[from] {
		if next == to {
			return true
		}
	}
	return false
}
