package types

import "time"

// Users seeded for the demo deployment; real deployments front this with the
// hosted identity provider.
type User struct {
	ID           string `gorm:"primaryKey;size:64"`
	DisplayName  string `gorm:"size:128;not null"`
	Role         string `gorm:"size:16;not null"` // submitter|reviewer
	PasswordHash string `gorm:"size:128;not null"`
	CreatedAt    time.Time
}

// FeedbackRecord is the server-side aggregate one sync core tracks.
type FeedbackRecord struct {
	ID      string `gorm:"primaryKey;size:64"`
	OwnerID string `gorm:"index;size:64;not null"`

	Category      string `gorm:"size:32;not null"`
	Title         string `gorm:"size:255"`
	Description   string `gorm:"type:text"`
	Suggestion    string `gorm:"type:text"`
	Rating        int    `gorm:"default:0"`
	AttachmentRef string `gorm:"size:256"`

	Status        string `gorm:"size:32;not null"`
	Urgency       int    `gorm:"default:0"`
	InternalNotes string `gorm:"type:text"`

	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastUpdatedByRole string `gorm:"size:16"`
	LastUpdatedByID   string `gorm:"size:64"`
	LastUpdatedByName string `gorm:"size:128"`
	RespondedAt       *time.Time

	// Revision grows by one on every write; push snapshots carry it so
	// clients can drop stale ones.
	Revision uint64 `gorm:"default:0"`

	Replies []FeedbackReply `gorm:"foreignKey:RecordID"`
}

// FeedbackReply rows are append-only; there is no update or delete path.
type FeedbackReply struct {
	ID         uint64 `gorm:"primaryKey"`
	RecordID   string `gorm:"index;size:64;not null"`
	AuthorRole string `gorm:"size:16;not null"`
	AuthorID   string `gorm:"size:64;not null"`
	AuthorName string `gorm:"size:128"`
	Message    string `gorm:"type:text;not null"`
	At         time.Time
}

// Notification is one delivered side-effect event.
type Notification struct {
	ID          uint64 `gorm:"primaryKey"`
	RecipientID string `gorm:"index;size:64;not null"`
	Kind        string `gorm:"size:32;not null"`
	RecordID    string `gorm:"size:64"`
	Preview     string `gorm:"size:512"`
	OldStatus   string `gorm:"size:32"`
	NewStatus   string `gorm:"size:32"`
	CreatedAt   time.Time
	ReadAt      *time.Time
}
