// Package model 包含了应用的数据模型定义。
package model

import (
	"time"

	"gorm.io/datatypes"
)

// Conversation 是一次礼宾对话，归属于一个行程和一个用户。
// MessagesJSON 是存储中的原始数据，Messages 是经过校验后的消息序列。
type Conversation struct {
	ID           string         `gorm:"primaryKey;size:64" json:"id"`
	Title        string         `gorm:"size:255;not null;default:''" json:"title"`
	MessagesJSON datatypes.JSON `gorm:"column:messages" json:"-"`
	Messages     []Message      `gorm:"-" json:"messages"`
	TripID       string         `gorm:"size:64;not null;index:idx_conversation_trip_user,priority:1" json:"tripId"`
	UserID       string         `gorm:"size:64;not null;index:idx_conversation_trip_user,priority:2" json:"userId"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"index" json:"updatedAt"`
}

func (Conversation) TableName() string {
	return "concierge_conversations"
}
