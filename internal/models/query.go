package models

import (
	"time"

	"gorm.io/datatypes"
)

// QueryRecord — строка истории запросов к ассистенту.
type QueryRecord struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UserEmail string         `gorm:"size:255;index" json:"user_email"`
	Query     string         `gorm:"type:text;not null" json:"query"`
	Response  string         `gorm:"type:text" json:"response"`
	Failed    bool           `json:"failed"`
	Filters   datatypes.JSON `json:"filters"`
}
