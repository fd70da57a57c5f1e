package model

import (
	"time"

	"gorm.io/datatypes"
)

// TripSuggestion 对应 'trip_suggestions' 表，记录用户从礼宾对话中保存的建议。
type TripSuggestion struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	UserID    string         `gorm:"size:64;not null;index" json:"userId"`
	TripID    string         `gorm:"size:64;not null;index" json:"tripId"`
	Category  string         `gorm:"size:64" json:"category"`
	Content   datatypes.JSON `json:"content"`
	SavedAt   time.Time      `json:"savedAt"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

func (TripSuggestion) TableName() string {
	return "trip_suggestions"
}

// SuggestionSavedEvent 是保存建议后发布到 Kafka 的事件。
type SuggestionSavedEvent struct {
	SuggestionID string         `json:"suggestion_id"`
	UserID       string         `json:"user_id"`
	TripID       string         `json:"trip_id"`
	Category     string         `json:"category"`
	Content      datatypes.JSON `json:"content"`
	SavedAt      time.Time      `json:"saved_at"`
}
