package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
)

// MessageType 标识聊天消息的发送方。
type MessageType string

const (
	MessageTypeUser   MessageType = "user"
	MessageTypeBot    MessageType = "bot"
	MessageTypeSystem MessageType = "system"
)

// Message 是对话中的单条消息，ID 由服务端生成。
type Message struct {
	ID          string       `json:"id"`
	Type        MessageType  `json:"type"`
	Content     string       `json:"content"`
	Timestamp   string       `json:"timestamp"` // ISO-8601
	SaveOptions *SaveOptions `json:"saveOptions,omitempty"`
}

// SaveOptions 是机器人回复附带的建议，用户可以选择保存到行程中。
type SaveOptions struct {
	Category string          `json:"category,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Actions  []SaveAction    `json:"actions,omitempty"`
}

// SaveAction 是建议上的一个操作按钮。
type SaveAction struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label"`
	Type  string `json:"type,omitempty"`
}

// MessageLogKind 区分存储中 messages 字段的两种解码结果。
type MessageLogKind int

const (
	MessageLogSequence MessageLogKind = iota
	MessageLogMalformed
)

// MessageLog 是持久化边界上 messages 字段的解码结果：
// 要么是一个消息序列，要么是无法解码的脏数据。
type MessageLog struct {
	Kind     MessageLogKind
	Messages []Message
	Err      error
}

var errNotAnArray = errors.New("messages is not a JSON array")

// DecodeMessageLog 解码并校验存储的 messages 字段。
// 空值视为空序列；null、非数组或元素结构不符都视为 Malformed。
func DecodeMessageLog(raw []byte) MessageLog {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return MessageLog{Kind: MessageLogSequence, Messages: []Message{}}
	}
	if trimmed[0] != '[' {
		return MessageLog{Kind: MessageLogMalformed, Err: errNotAnArray}
	}
	var messages []Message
	if err := json.Unmarshal(trimmed, &messages); err != nil {
		return MessageLog{Kind: MessageLogMalformed, Err: fmt.Errorf("failed to decode messages: %w", err)}
	}
	if messages == nil {
		messages = []Message{}
	}
	return MessageLog{Kind: MessageLogSequence, Messages: messages}
}

// Sequence 返回消息序列，Malformed 时返回空序列，永不为 nil。
func (l MessageLog) Sequence() []Message {
	if l.Kind != MessageLogSequence || l.Messages == nil {
		return []Message{}
	}
	return l.Messages
}

// EncodeMessages 将消息序列编码为存储格式，nil 编码为 []。
func EncodeMessages(messages []Message) (datatypes.JSON, error) {
	if messages == nil {
		messages = []Message{}
	}
	b, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages: %w", err)
	}
	return datatypes.JSON(b), nil
}
