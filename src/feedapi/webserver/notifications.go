package webserver

import (
	"net/http"
	"time"

	"github.com/clearvoice-app/clearvoice/src/feedapi/types"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Notifications struct {
	db *gorm.DB
}

func NewNotifications(db *gorm.DB) Notifications {
	return Notifications{db: db}
}

// Create stores one notification event for later delivery. The client side
// fires these and forgets; a failure here never fails the triggering action.
func (h Notifications) Create(c *gin.Context) {
	var req struct {
		Kind        string `json:"kind" binding:"required"`
		RecipientID string `json:"recipientId" binding:"required"`
		RecordID    string `json:"recordId"`
		Preview     string `json:"preview"`
		OldStatus   string `json:"oldStatus"`
		NewStatus   string `json:"newStatus"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	n := types.Notification{
		RecipientID: req.RecipientID,
		Kind:        req.Kind,
		RecordID:    req.RecordID,
		Preview:     req.Preview,
		OldStatus:   req.OldStatus,
		NewStatus:   req.NewStatus,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.db.Create(&n).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": n.ID})
}

// List returns the calling actor's notifications, newest first.
func (h Notifications) List(c *gin.Context) {
	actorID := c.GetString("actorId")
	var out []types.Notification
	err := h.db.Where("recipient_id = ?", actorID).
		Order("created_at desc").Limit(100).Find(&out).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}
