package webserver

import (
	"net/http"
	"time"

	"github.com/clearvoice-app/clearvoice/src/feedapi/types"
	"github.com/clearvoice-app/clearvoice/src/record"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type patchRequest struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Suggestion    *string `json:"suggestion"`
	Rating        *int    `json:"rating"`
	AttachmentRef *string `json:"attachmentRef"`
	Status        *string `json:"status"`
	Urgency       *int    `json:"urgency"`
	InternalNotes *string `json:"internalNotes"`
	Replies       []struct {
		AuthorRole string    `json:"authorRole"`
		Message    string    `json:"message"`
		AuthorID   string    `json:"authorId"`
		AuthorName string    `json:"authorName"`
		At         time.Time `json:"at"`
	} `json:"replies"`
}

func (r patchRequest) touchesContent() bool {
	return r.Title != nil || r.Description != nil || r.Suggestion != nil ||
		r.Rating != nil || r.AttachmentRef != nil
}

func (r patchRequest) touchesMeta() bool {
	return r.Status != nil || r.Urgency != nil || r.InternalNotes != nil
}

// Patch applies a partial change: submitter content edits inside the edit
// window, reviewer triage writes with status-transition validation, and
// append-only reply growth. Every accepted write bumps the revision and
// publishes a fresh snapshot.
func (h Records) Patch(c *gin.Context) {
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	var m types.FeedbackRecord
	if err := h.db.First(&m, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "record not found"})
		return
	}
	existing, err := h.loadReplies(m.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	actorID, actorName, role := actor(c)

	switch role {
	case record.RoleSubmitter:
		if m.OwnerID != actorID {
			c.JSON(http.StatusForbidden, gin.H{"err": "not your record"})
			return
		}
		if req.touchesMeta() {
			c.JSON(http.StatusBadRequest, gin.H{"err": "submitters cannot change triage fields"})
			return
		}
		if req.touchesContent() && m.Status != string(record.StatusSubmitted) {
			c.JSON(http.StatusConflict, gin.H{"err": "edit window closed"})
			return
		}
	case record.RoleReviewer:
		if req.touchesContent() {
			c.JSON(http.StatusBadRequest, gin.H{"err": "reviewers cannot change submission content"})
			return
		}
	default:
		c.JSON(http.StatusForbidden, gin.H{"err": "unknown role"})
		return
	}

	// append-only conversation: the payload carries the full array and may
	// only grow it
	var appended []types.FeedbackReply
	if req.Replies != nil {
		if len(req.Replies) < len(existing) {
			c.JSON(http.StatusBadRequest, gin.H{"err": "replies are append-only"})
			return
		}
		reviewerReplied := false
		for _, r := range existing {
			if r.AuthorRole == string(record.RoleReviewer) {
				reviewerReplied = true
				break
			}
		}
		for _, wr := range req.Replies[len(existing):] {
			replyRole, ok := record.ParseRole(wr.AuthorRole)
			if !ok || replyRole != role {
				c.JSON(http.StatusBadRequest, gin.H{"err": "reply author role mismatch"})
				return
			}
			if replyRole == record.RoleSubmitter && !reviewerReplied {
				c.JSON(http.StatusConflict, gin.H{"err": "conversation must be opened by a reviewer"})
				return
			}
			msg := h.clean(wr.Message)
			if msg == "" {
				c.JSON(http.StatusBadRequest, gin.H{"err": "empty reply"})
				return
			}
			at := wr.At
			if at.IsZero() {
				at = time.Now().UTC()
			}
			appended = append(appended, types.FeedbackReply{
				RecordID:   m.ID,
				AuthorRole: string(replyRole),
				AuthorID:   actorID,
				AuthorName: actorName,
				Message:    msg,
				At:         at.UTC(),
			})
		}
	}

	if req.Status != nil {
		next, ok := record.ParseStatus(*req.Status)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"err": "unknown status"})
			return
		}
		if !record.CanTransition(record.Status(m.Status), next) {
			c.JSON(http.StatusConflict, gin.H{"err": "illegal status transition"})
			return
		}
		m.Status = string(next)
	}
	if req.Urgency != nil {
		if !record.ValidUrgency(*req.Urgency) {
			c.JSON(http.StatusBadRequest, gin.H{"err": "urgency out of range"})
			return
		}
		m.Urgency = *req.Urgency
	}
	if req.InternalNotes != nil {
		m.InternalNotes = h.clean(*req.InternalNotes)
	}
	if req.Title != nil {
		m.Title = h.clean(*req.Title)
	}
	if req.Description != nil {
		m.Description = h.clean(*req.Description)
	}
	if req.Suggestion != nil {
		m.Suggestion = h.clean(*req.Suggestion)
	}
	if req.Rating != nil {
		if !record.ValidRating(*req.Rating) {
			c.JSON(http.StatusBadRequest, gin.H{"err": "rating out of range"})
			return
		}
		m.Rating = *req.Rating
	}
	if req.AttachmentRef != nil {
		m.AttachmentRef = record.CleanText(*req.AttachmentRef)
	}

	now := time.Now().UTC()
	m.UpdatedAt = now
	m.LastUpdatedByRole = string(role)
	m.LastUpdatedByID = actorID
	m.LastUpdatedByName = actorName
	m.Revision++
	if role == record.RoleReviewer && len(appended) > 0 && m.RespondedAt == nil {
		m.RespondedAt = &now
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&m).Error; err != nil {
			return err
		}
		for i := range appended {
			if err := tx.Create(&appended[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	rec := wireRecord(m, append(existing, appended...))
	h.publish(rec)
	c.JSON(http.StatusOK, rec)
}
