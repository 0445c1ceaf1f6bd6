package notify

import "github.com/clearvoice-app/clearvoice/src/record"

// StatusChanged decides whether a meta update warrants a notification to the
// record owner. Meta-only writes (urgency, notes) with an unchanged status do
// not.
func StatusChanged(prev, next record.Record) (Event, bool) {
	if prev.Status == next.Status {
		return Event{}, false
	}
	return Event{
		Kind:        KindStatusChanged,
		RecipientID: next.OwnerID,
		RecordID:    next.ID,
		OldStatus:   string(prev.Status),
		NewStatus:   string(next.Status),
	}, true
}

// ReviewerReplied always notifies the record owner.
func ReviewerReplied(rec record.Record, replyText string) (Event, bool) {
	return Event{
		Kind:        KindReviewerReply,
		RecipientID: rec.OwnerID,
		RecordID:    rec.ID,
		Preview:     Truncate(replyText),
	}, true
}

// SubmitterReplied notifies the reviewer who last touched the record; before
// any reviewer action there is nobody to notify.
func SubmitterReplied(rec record.Record, replyText string) (Event, bool) {
	if rec.LastUpdatedByID == "" {
		return Event{}, false
	}
	return Event{
		Kind:        KindSubmitterReply,
		RecipientID: rec.LastUpdatedByID,
		RecordID:    rec.ID,
		Preview:     Truncate(replyText),
	}, true
}

// OnStatusChange emits a status-changed event when the transition calls for
// one. Fire-and-forget.
func (e *Emitter) OnStatusChange(prev, next record.Record) {
	if ev, ok := StatusChanged(prev, next); ok {
		e.dispatch(ev)
	}
}

// OnReviewerReply emits a new-reviewer-reply event. Fire-and-forget.
func (e *Emitter) OnReviewerReply(rec record.Record, replyText string) {
	if ev, ok := ReviewerReplied(rec, replyText); ok {
		e.dispatch(ev)
	}
}

// OnSubmitterReply emits a new-submitter-reply event when a reviewer is on
// the record. Fire-and-forget.
func (e *Emitter) OnSubmitterReply(rec record.Record, replyText string) {
	if ev, ok := SubmitterReplied(rec, replyText); ok {
		e.dispatch(ev)
	}
}
