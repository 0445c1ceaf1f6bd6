// Package notify derives notification side effects from record state
// transitions. Decisions are pure functions; dispatch is fire-and-forget and
// never fails the action that triggered it.
package notify

import (
	"context"
	"log"
	"time"
)

// PreviewLimit is the maximum rune length of a reply preview carried in a
// notification.
const PreviewLimit = 80

const (
	KindStatusChanged  = "status_changed"
	KindReviewerReply  = "reviewer_reply"
	KindSubmitterReply = "submitter_reply"
)

// Event is one notification to be delivered to a user.
type Event struct {
	Kind        string `json:"kind"`
	RecipientID string `json:"recipientId"`
	RecordID    string `json:"recordId"`
	Preview     string `json:"preview,omitempty"`
	OldStatus   string `json:"oldStatus,omitempty"`
	NewStatus   string `json:"newStatus,omitempty"`
}

// Sender delivers one event. remote.Client satisfies this.
type Sender interface {
	PushNotification(ctx context.Context, ev Event) error
}

// Truncate caps s at PreviewLimit runes, marking truncation with an
// ellipsis.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= PreviewLimit {
		return s
	}
	return string(runes[:PreviewLimit]) + "…"
}

// Emitter couples the decision functions below to a Sender. Emission runs in
// the background; failures are logged and swallowed so they can never abort
// the caller's primary action.
type Emitter struct {
	sender  Sender
	logger  *log.Logger
	timeout time.Duration
}

func NewEmitter(sender Sender, logger *log.Logger) *Emitter {
	if logger == nil {
		logger = log.Default()
	}
	return &Emitter{sender: sender, logger: logger, timeout: 10 * time.Second}
}

func (e *Emitter) dispatch(ev Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.sender.PushNotification(ctx, ev); err != nil {
			e.logger.Printf("notify: %s to %s failed: %v", ev.Kind, ev.RecipientID, err)
		}
	}()
}
