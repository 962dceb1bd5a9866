package world

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Record is one durable generated world. The bible column holds the validated document as
// served to the client; title, setting and tone are copied out for listing.
type Record struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Fingerprint string         `gorm:"column:fingerprint;index" json:"fingerprint"`
	Story       string         `gorm:"column:story;not null" json:"story"`
	EndGoal     string         `gorm:"column:end_goal;not null" json:"end_goal"`
	Title       string         `gorm:"column:title" json:"title"`
	Setting     string         `gorm:"column:setting" json:"setting"`
	Tone        string         `gorm:"column:tone" json:"tone"`
	Source      string         `gorm:"column:source" json:"source"`
	Bible       datatypes.JSON `gorm:"column:game_bible;not null" json:"game_bible"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
}

func (Record) TableName() string { return "world_record" }

// Summary is the listing row.
type Summary struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Setting   string    `json:"setting"`
	Tone      string    `json:"tone"`
	EndGoal   string    `json:"end_goal"`
	CreatedAt time.Time `json:"created_at"`
}
