package webserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/clearvoice-app/clearvoice/src/feedapi/data"
	"github.com/clearvoice-app/clearvoice/src/feedapi/types"
	"github.com/clearvoice-app/clearvoice/src/record"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Alerts is the optional reviewer-channel hook fired on new submissions.
type Alerts interface {
	NewSubmission(rec record.Record)
}

type Records struct {
	db     *gorm.DB
	rdb    *redis.Client
	alerts Alerts
	policy *bluemonday.Policy
}

func NewRecords(db *gorm.DB, rdb *redis.Client, alerts Alerts) Records {
	return Records{
		db:     db,
		rdb:    rdb,
		alerts: alerts,
		policy: bluemonday.StrictPolicy(),
	}
}

func (h Records) clean(s string) string {
	return record.CleanText(h.policy.Sanitize(s))
}

func actor(c *gin.Context) (id, name string, role record.Role) {
	id = c.GetString("actorId")
	name = c.GetString("actorName")
	role, _ = record.ParseRole(c.GetString("actorRole"))
	return
}

// wireRecord converts the stored aggregate into the canonical wire shape
// shared with the client's record package.
func wireRecord(m types.FeedbackRecord, replies []types.FeedbackReply) record.Record {
	rec := record.Record{
		ID:                m.ID,
		OwnerID:           m.OwnerID,
		Category:          record.Category(m.Category),
		Title:             m.Title,
		Description:       m.Description,
		Suggestion:        m.Suggestion,
		Rating:            m.Rating,
		AttachmentRef:     m.AttachmentRef,
		Status:            record.Status(m.Status),
		Urgency:           m.Urgency,
		InternalNotes:     m.InternalNotes,
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
		LastUpdatedByID:   m.LastUpdatedByID,
		LastUpdatedByName: m.LastUpdatedByName,
		Revision:          m.Revision,
		Replies:           make([]record.Reply, 0, len(replies)),
	}
	if role, ok := record.ParseRole(m.LastUpdatedByRole); ok {
		rec.LastUpdatedByRole = role
	}
	if m.RespondedAt != nil {
		rec.RespondedAt = m.RespondedAt.UTC()
	}
	for _, r := range replies {
		role, _ := record.ParseRole(r.AuthorRole)
		rec.Replies = append(rec.Replies, record.Reply{
			AuthorRole: role,
			Message:    r.Message,
			AuthorID:   r.AuthorID,
			AuthorName: r.AuthorName,
			At:         r.At.UTC(),
		})
	}
	return rec
}

// publish pushes the full snapshot to per-record subscribers plus the
// id-only dashboard ping. Push failures are logged; the write has already
// committed.
func (h Records) publish(rec record.Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		log.Printf("records: marshal snapshot %s: %v", rec.ID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := data.PublishSnapshot(ctx, h.rdb, rec.ID, payload); err != nil {
		log.Printf("records: publish snapshot %s: %v", rec.ID, err)
	}
	if err := data.PublishChanged(ctx, h.rdb, rec.ID); err != nil {
		log.Printf("records: publish changed %s: %v", rec.ID, err)
	}
}

func (h Records) loadReplies(recordID string) ([]types.FeedbackReply, error) {
	var replies []types.FeedbackReply
	err := h.db.Where("record_id = ?", recordID).Order("id asc").Find(&replies).Error
	return replies, err
}

func (h Records) Create(c *gin.Context) {
	var req struct {
		Category      string `json:"category" binding:"required"`
		Title         string `json:"title"`
		Description   string `json:"description"`
		Suggestion    string `json:"suggestion"`
		Rating        int    `json:"rating"`
		AttachmentRef string `json:"attachmentRef"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	category, ok := record.ParseCategory(req.Category)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"err": "unknown category"})
		return
	}
	if !record.ValidRating(req.Rating) {
		c.JSON(http.StatusBadRequest, gin.H{"err": "rating out of range"})
		return
	}
	ownerID, _, role := actor(c)
	if role != record.RoleSubmitter {
		c.JSON(http.StatusForbidden, gin.H{"err": "only submitters create records"})
		return
	}

	now := time.Now().UTC()
	m := types.FeedbackRecord{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Category:      string(category),
		Title:         h.clean(req.Title),
		Description:   h.clean(req.Description),
		Suggestion:    h.clean(req.Suggestion),
		Rating:        req.Rating,
		AttachmentRef: record.CleanText(req.AttachmentRef),
		Status:        string(record.StatusSubmitted),
		CreatedAt:     now,
		UpdatedAt:     now,
		Revision:      1,
	}
	if err := h.db.Create(&m).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	rec := wireRecord(m, nil)
	h.publish(rec)
	if h.alerts != nil {
		go h.alerts.NewSubmission(rec)
	}

	c.JSON(http.StatusCreated, rec)
}

func (h Records) Get(c *gin.Context) {
	var m types.FeedbackRecord
	if err := h.db.First(&m, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "record not found"})
		return
	}
	replies, err := h.loadReplies(m.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, wireRecord(m, replies))
}

// List serves the dashboard surfaces; consumers refresh on the id-only ping
// channel.
func (h Records) List(c *gin.Context) {
	q := h.db.Order("created_at desc")
	if owner := c.Query("owner"); owner != "" {
		q = q.Where("owner_id = ?", owner)
	}
	var models []types.FeedbackRecord
	if err := q.Find(&models).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	out := make([]record.Record, 0, len(models))
	for _, m := range models {
		replies, err := h.loadReplies(m.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
			return
		}
		out = append(out, wireRecord(m, replies))
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}

func (h Records) Delete(c *gin.Context) {
	var m types.FeedbackRecord
	if err := h.db.First(&m, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "record not found"})
		return
	}
	actorID, _, role := actor(c)
	if role == record.RoleSubmitter {
		if m.OwnerID != actorID {
			c.JSON(http.StatusForbidden, gin.H{"err": "not your record"})
			return
		}
		if m.Status != string(record.StatusSubmitted) {
			c.JSON(http.StatusConflict, gin.H{"err": "edit window closed"})
			return
		}
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("record_id = ?", m.ID).Delete(&types.FeedbackReply{}).Error; err != nil {
			return err
		}
		return tx.Delete(&m).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := data.PublishChanged(ctx, h.rdb, m.ID); err != nil {
		log.Printf("records: publish changed %s: %v", m.ID, err)
	}
	c.Status(http.StatusNoContent)
}
