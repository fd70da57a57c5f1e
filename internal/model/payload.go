package model

import "encoding/json"

// ChatPayload 是发送给外部自动化工具的请求结构，每条消息重新构建，构建后不再修改。
type ChatPayload struct {
	UserData    PayloadUser    `json:"user_data"`
	TripData    PayloadTrip    `json:"trip_data"`
	RequestData PayloadRequest `json:"request_data"`
}

type PayloadUser struct {
	UserID      string                 `json:"user_id"`
	Preferences map[string]interface{} `json:"preferences"`
	Timezone    string                 `json:"timezone"`
}

type PayloadTrip struct {
	TripID          string            `json:"trip_id"`
	Destination     string            `json:"destination"`
	StartDate       string            `json:"start_date"`
	EndDate         string            `json:"end_date"`
	DurationDays    int               `json:"duration_days"`
	Destinations    []string          `json:"destinations"`
	BudgetRange     string            `json:"budget_range"`
	TravelerCount   int               `json:"traveler_count"`
	Status          string            `json:"status"`
	RoteiroDestinos []PayloadLocation `json:"roteiro_destinos"`
}

// PayloadLocation 是行程途经点的精简结构。
type PayloadLocation struct {
	LocationName string `json:"location_name"`
	LocationType string `json:"location_type"`
	OrderIndex   int    `json:"order_index"`
	Notes        string `json:"notes"`
}

type PayloadRequest struct {
	Category       string `json:"category"`
	UserMessage    string `json:"user_message"`
	ConversationID string `json:"conversation_id"`
	SessionID      string `json:"session_id"`
	Timestamp      string `json:"timestamp"`
	Language       string `json:"language"`
}

// RelayResult 是转发调用的统一结果结构。
// Success 为 false 时是正常的业务结果，不是异常。
type RelayResult struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message,omitempty"`
	SaveOptions *SaveOptions `json:"saveOptions,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// SaveRequest 是保存建议到行程的请求体。
type SaveRequest struct {
	UserID   string          `json:"user_id" binding:"required"`
	TripID   string          `json:"trip_id" binding:"required"`
	Category string          `json:"category"`
	Content  json.RawMessage `json:"content"`
	SavedAt  string          `json:"saved_at"`
}
