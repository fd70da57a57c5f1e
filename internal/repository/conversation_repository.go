// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"travel-concierge-go/internal/model"
	"travel-concierge-go/pkg/log"
)

// ErrConversationNotFound 表示对话不存在，或者不属于当前用户。
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository 定义了礼宾对话的持久化操作。
// 所有方法都按 user_id 过滤，跨用户访问在结构上不可能发生。
type ConversationRepository interface {
	ListRecent(ctx context.Context, tripID, userID string, limit int) ([]model.Conversation, error)
	Create(ctx context.Context, conversation *model.Conversation) error
	UpdateMessages(ctx context.Context, id, userID string, messages []model.Message, title *string) (*model.Conversation, error)
	FindByID(ctx context.Context, id, userID string) (*model.Conversation, error)
	FindInTrip(ctx context.Context, id, tripID, userID string) (*model.Conversation, error)
	Delete(ctx context.Context, id, userID string) error
	DeleteByTrip(ctx context.Context, tripID, userID string) (int64, error)
}

type gormConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &gormConversationRepository{db: db}
}

// ListRecent 按 updated_at 倒序返回最近的对话。
func (r *gormConversationRepository) ListRecent(ctx context.Context, tripID, userID string, limit int) ([]model.Conversation, error) {
	var conversations []model.Conversation
	err := r.db.WithContext(ctx).
		Where("trip_id = ? AND user_id = ?", tripID, userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&conversations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	for i := range conversations {
		decodeMessages(&conversations[i])
	}
	return conversations, nil
}

// Create 插入一条新对话，messages 为空时写入 []。
func (r *gormConversationRepository) Create(ctx context.Context, conversation *model.Conversation) error {
	raw, err := model.EncodeMessages(conversation.Messages)
	if err != nil {
		return err
	}
	conversation.MessagesJSON = raw
	if conversation.Messages == nil {
		conversation.Messages = []model.Message{}
	}
	if err := r.db.WithContext(ctx).Create(conversation).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// UpdateMessages 整体替换 messages 并刷新 updated_at，title 非空时一并修改。
func (r *gormConversationRepository) UpdateMessages(ctx context.Context, id, userID string, messages []model.Message, title *string) (*model.Conversation, error) {
	raw, err := model.EncodeMessages(messages)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"messages":   raw,
		"updated_at": r.db.NowFunc(),
	}
	if title != nil {
		updates["title"] = *title
	}

	result := r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrConversationNotFound
	}
	return r.FindByID(ctx, id, userID)
}

// FindByID 按 ID 查找属于该用户的对话。
func (r *gormConversationRepository) FindByID(ctx context.Context, id, userID string) (*model.Conversation, error) {
	return findOne(r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID))
}

// FindInTrip 与 FindByID 相同，但对话还必须属于 tripID。
func (r *gormConversationRepository) FindInTrip(ctx context.Context, id, tripID, userID string) (*model.Conversation, error) {
	return findOne(r.db.WithContext(ctx).Where("id = ? AND trip_id = ? AND user_id = ?", id, tripID, userID))
}

func findOne(query *gorm.DB) (*model.Conversation, error) {
	var conversation model.Conversation
	err := query.First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	decodeMessages(&conversation)
	return &conversation, nil
}

// Delete 删除属于该用户的一条对话。
func (r *gormConversationRepository) Delete(ctx context.Context, id, userID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.Conversation{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// DeleteByTrip 删除该用户在某个行程下的全部对话，返回删除条数。
func (r *gormConversationRepository) DeleteByTrip(ctx context.Context, tripID, userID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("trip_id = ? AND user_id = ?", tripID, userID).
		Delete(&model.Conversation{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete trip conversations: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// decodeMessages 在读取边界校验 messages，脏数据降级为空序列并记录日志。
func decodeMessages(conversation *model.Conversation) {
	messageLog := model.DecodeMessageLog(conversation.MessagesJSON)
	if messageLog.Kind == model.MessageLogMalformed {
		log.Warnw("conversation messages malformed, treating as empty",
			"conversationId", conversation.ID,
			"error", messageLog.Err,
		)
	}
	conversation.Messages = messageLog.Sequence()
}
