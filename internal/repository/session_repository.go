package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const currentConversationTTL = 7 * 24 * time.Hour

// SessionRepository 记录每个用户在每个行程下"当前"打开的对话，
// 客户端重连后可以恢复到同一个对话。
type SessionRepository interface {
	GetCurrentConversationID(ctx context.Context, userID, tripID string) (string, error)
	SetCurrentConversationID(ctx context.Context, userID, tripID, conversationID string) error
	ClearCurrentConversationID(ctx context.Context, userID, tripID string) error
}

type redisSessionRepository struct {
	redisClient *redis.Client
}

// NewSessionRepository 创建一个基于 Redis 的 SessionRepository。
func NewSessionRepository(redisClient *redis.Client) SessionRepository {
	return &redisSessionRepository{redisClient: redisClient}
}

func currentConversationKey(userID, tripID string) string {
	return fmt.Sprintf("concierge:user:%s:trip:%s:current", userID, tripID)
}

// GetCurrentConversationID 返回当前对话 ID，没有记录时返回空字符串。
func (r *redisSessionRepository) GetCurrentConversationID(ctx context.Context, userID, tripID string) (string, error) {
	convID, err := r.redisClient.Get(ctx, currentConversationKey(userID, tripID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get current conversation id: %w", err)
	}
	return convID, nil
}

func (r *redisSessionRepository) SetCurrentConversationID(ctx context.Context, userID, tripID, conversationID string) error {
	err := r.redisClient.Set(ctx, currentConversationKey(userID, tripID), conversationID, currentConversationTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set current conversation id: %w", err)
	}
	return nil
}

func (r *redisSessionRepository) ClearCurrentConversationID(ctx context.Context, userID, tripID string) error {
	if err := r.redisClient.Del(ctx, currentConversationKey(userID, tripID)).Err(); err != nil {
		return fmt.Errorf("failed to clear current conversation id: %w", err)
	}
	return nil
}
