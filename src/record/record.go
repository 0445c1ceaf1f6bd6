package record

import (
	"sort"
	"strings"
	"time"
)

// Role tags reply authors and record writers. The wire form is always the
// canonical lowercase tag; ParseRole accepts any casing.
type Role string

const (
	RoleSubmitter Role = "submitter"
	RoleReviewer  Role = "reviewer"
)

func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RoleSubmitter):
		return RoleSubmitter, true
	case string(RoleReviewer):
		return RoleReviewer, true
	}
	return "", false
}

type Category string

const (
	CategoryBug         Category = "bug"
	CategoryFeature     Category = "feature"
	CategoryImprovement Category = "improvement"
	CategoryQuestion    Category = "question"
	CategoryOther       Category = "other"
)

func ParseCategory(s string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryBug:
		return CategoryBug, true
	case CategoryFeature:
		return CategoryFeature, true
	case CategoryImprovement:
		return CategoryImprovement, true
	case CategoryQuestion:
		return CategoryQuestion, true
	case CategoryOther:
		return CategoryOther, true
	}
	return "", false
}

// Reply is one message in a record's conversation. Replies are append-only:
// once stored they are never edited, deleted or reordered.
type Reply struct {
	AuthorRole Role      `json:"authorRole"`
	Message    string    `json:"message"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	At         time.Time `json:"at"`
}

// Record is an immutable snapshot of one feedback submission plus its
// conversation. Mutation happens only through With/WithReply, which return a
// new value. Optional text fields use "" for absent, optional numerics 0,
// optional times the zero time.
type Record struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`

	Category      Category `json:"category"`
	Title         string   `json:"title,omitempty"`
	Description   string   `json:"description,omitempty"`
	Suggestion    string   `json:"suggestion,omitempty"`
	Rating        int      `json:"rating"`
	AttachmentRef string   `json:"attachmentRef,omitempty"`

	Status        Status `json:"status"`
	Urgency       int    `json:"urgency,omitempty"`
	InternalNotes string `json:"internalNotes,omitempty"`

	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt,omitempty"`
	LastUpdatedByRole Role      `json:"lastUpdatedByRole,omitempty"`
	LastUpdatedByID   string    `json:"lastUpdatedById,omitempty"`
	LastUpdatedByName string    `json:"lastUpdatedByName,omitempty"`
	RespondedAt       time.Time `json:"respondedAt,omitempty"`

	// Revision is bumped by the server on every write; 0 means the payload
	// did not carry one and ordering falls back to last-write-wins.
	Revision uint64 `json:"revision,omitempty"`

	Replies []Reply `json:"replies"`
}

// Change carries the fields a write wants to touch; nil pointers are left
// alone. Replies, when set, replaces the whole conversation (the server is
// the authority on append-only growth).
type Change struct {
	Title         *string
	Description   *string
	Suggestion    *string
	Rating        *int
	AttachmentRef *string
	Status        *Status
	Urgency       *int
	InternalNotes *string
	Replies       *[]Reply
}

// With returns a copy with the set fields applied and a fresh UpdatedAt.
func (r Record) With(ch Change) Record {
	out := r
	out.Replies = append([]Reply(nil), r.Replies...)
	if ch.Title != nil {
		out.Title = *ch.Title
	}
	if ch.Description != nil {
		out.Description = *ch.Description
	}
	if ch.Suggestion != nil {
		out.Suggestion = *ch.Suggestion
	}
	if ch.Rating != nil {
		out.Rating = *ch.Rating
	}
	if ch.AttachmentRef != nil {
		out.AttachmentRef = *ch.AttachmentRef
	}
	if ch.Status != nil {
		out.Status = *ch.Status
	}
	if ch.Urgency != nil {
		out.Urgency = *ch.Urgency
	}
	if ch.InternalNotes != nil {
		out.InternalNotes = *ch.InternalNotes
	}
	if ch.Replies != nil {
		out.Replies = append([]Reply(nil), *ch.Replies...)
	}
	out.UpdatedAt = time.Now().UTC()
	return out
}

// WithReply returns a copy with rep appended and a fresh UpdatedAt.
func (r Record) WithReply(rep Reply) Record {
	out := r
	out.Replies = make([]Reply, 0, len(r.Replies)+1)
	out.Replies = append(out.Replies, r.Replies...)
	out.Replies = append(out.Replies, rep)
	out.UpdatedAt = time.Now().UTC()
	return out
}

// IsFullSubmission reports whether this is a full write-up rather than a
// rating-only quick entry.
func (r Record) IsFullSubmission() bool {
	return r.Title != "" && r.Description != ""
}

// IsEditableBySubmitter reports whether the submitter still owns the edit
// window. Any reviewer action that advances status closes it.
func (r Record) IsEditableBySubmitter() bool {
	return r.Status == StatusSubmitted
}

// ReviewerReplies returns the reviewer side of the conversation, oldest
// first. Recomputed on every call.
func (r Record) ReviewerReplies() []Reply {
	return r.repliesBy(RoleReviewer)
}

// SubmitterReplies returns the submitter side of the conversation, oldest
// first. Recomputed on every call.
func (r Record) SubmitterReplies() []Reply {
	return r.repliesBy(RoleSubmitter)
}

func (r Record) repliesBy(role Role) []Reply {
	out := make([]Reply, 0, len(r.Replies))
	for _, rep := range r.Replies {
		if rep.AuthorRole == role {
			out = append(out, rep)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// CleanText trims free text the way every write path must before the value
// leaves the client.
func CleanText(s string) string {
	return strings.TrimSpace(s)
}

// ValidRating reports whether n is a legal rating; 0 means unrated.
func ValidRating(n int) bool { return n >= 0 && n <= 5 }

// ValidUrgency reports whether n is a legal urgency; 0 means unassigned.
func ValidUrgency(n int) bool { return n >= 0 && n <= 5 }
