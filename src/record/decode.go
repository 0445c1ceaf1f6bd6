package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MalformedRecordError reports a backend payload that does not satisfy the
// record shape. It is the only error Decode returns: raw payloads never make
// it past this boundary.
type MalformedRecordError struct {
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record: field %q %s", e.Field, e.Reason)
}

func malformed(field, reason string) error {
	return &MalformedRecordError{Field: field, Reason: reason}
}

type replyPayload struct {
	AuthorRole string     `json:"authorRole"`
	Message    string     `json:"message"`
	AuthorID   string     `json:"authorId"`
	AuthorName string     `json:"authorName"`
	At         *time.Time `json:"at"`
}

type recordPayload struct {
	ID      *string `json:"id"`
	OwnerID *string `json:"ownerId"`

	Category      *string `json:"category"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Suggestion    string  `json:"suggestion"`
	Rating        *int    `json:"rating"`
	AttachmentRef string  `json:"attachmentRef"`

	Status        *string `json:"status"`
	Urgency       int     `json:"urgency"`
	InternalNotes string  `json:"internalNotes"`

	CreatedAt         *time.Time `json:"createdAt"`
	UpdatedAt         *time.Time `json:"updatedAt"`
	LastUpdatedByRole string     `json:"lastUpdatedByRole"`
	LastUpdatedByID   string     `json:"lastUpdatedById"`
	LastUpdatedByName string     `json:"lastUpdatedByName"`
	RespondedAt       *time.Time `json:"respondedAt"`

	Revision uint64 `json:"revision"`

	Replies []replyPayload `json:"replies"`
}

// Decode parses a raw backend payload into a Record. Missing or
// wrongly-shaped required fields (id, ownerId, category, rating, status,
// createdAt) fail with MalformedRecordError; an absent replies field decodes
// as an empty conversation. Timestamps are absolute instants (RFC 3339).
func Decode(raw []byte) (Record, error) {
	var p recordPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Record{}, malformed(typeErr.Field, "has wrong type "+typeErr.Value)
		}
		return Record{}, malformed("", "is not valid JSON: "+err.Error())
	}
	switch {
	case p.ID == nil || *p.ID == "":
		return Record{}, malformed("id", "is missing")
	case p.OwnerID == nil || *p.OwnerID == "":
		return Record{}, malformed("ownerId", "is missing")
	case p.Category == nil:
		return Record{}, malformed("category", "is missing")
	case p.Rating == nil:
		return Record{}, malformed("rating", "is missing")
	case p.Status == nil:
		return Record{}, malformed("status", "is missing")
	case p.CreatedAt == nil:
		return Record{}, malformed("createdAt", "is missing")
	}

	category, ok := ParseCategory(*p.Category)
	if !ok {
		return Record{}, malformed("category", "has unknown value "+*p.Category)
	}
	status, ok := ParseStatus(*p.Status)
	if !ok {
		return Record{}, malformed("status", "has unknown value "+*p.Status)
	}
	if !ValidRating(*p.Rating) {
		return Record{}, malformed("rating", fmt.Sprintf("is out of range: %d", *p.Rating))
	}
	if !ValidUrgency(p.Urgency) {
		return Record{}, malformed("urgency", fmt.Sprintf("is out of range: %d", p.Urgency))
	}

	rec := Record{
		ID:              *p.ID,
		OwnerID:         *p.OwnerID,
		Category:        category,
		Title:           p.Title,
		Description:     p.Description,
		Suggestion:      p.Suggestion,
		Rating:          *p.Rating,
		AttachmentRef:   p.AttachmentRef,
		Status:          status,
		Urgency:         p.Urgency,
		InternalNotes:   p.InternalNotes,
		CreatedAt:       p.CreatedAt.UTC(),
		LastUpdatedByID: p.LastUpdatedByID,
		Revision:        p.Revision,
		Replies:         make([]Reply, 0, len(p.Replies)),
	}
	if p.UpdatedAt != nil {
		rec.UpdatedAt = p.UpdatedAt.UTC()
	}
	if p.RespondedAt != nil {
		rec.RespondedAt = p.RespondedAt.UTC()
	}
	if p.LastUpdatedByRole != "" {
		role, ok := ParseRole(p.LastUpdatedByRole)
		if !ok {
			return Record{}, malformed("lastUpdatedByRole", "has unknown value "+p.LastUpdatedByRole)
		}
		rec.LastUpdatedByRole = role
	}
	rec.LastUpdatedByName = p.LastUpdatedByName

	for i, rp := range p.Replies {
		field := fmt.Sprintf("replies[%d]", i)
		role, ok := ParseRole(rp.AuthorRole)
		if !ok {
			return Record{}, malformed(field+".authorRole", "has unknown value "+rp.AuthorRole)
		}
		if rp.At == nil {
			return Record{}, malformed(field+".at", "is missing")
		}
		rec.Replies = append(rec.Replies, Reply{
			AuthorRole: role,
			Message:    rp.Message,
			AuthorID:   rp.AuthorID,
			AuthorName: rp.AuthorName,
			At:         rp.At.UTC(),
		})
	}
	return rec, nil
}
