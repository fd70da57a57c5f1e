// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"sync"

	"travel-concierge-go/internal/model"
	"travel-concierge-go/internal/repository"
	"travel-concierge-go/pkg/ident"
	"travel-concierge-go/pkg/log"
)

// MaxVisibleConversations 是每个行程对客户端可见的最近对话数量上限。
const MaxVisibleConversations = 10

// ConversationStore 是限定在一个 (行程, 用户) 上的对话存储。
// 读操作失败时记录日志并返回空值，调用方把 nil / 空列表当作"稍后重试"。
type ConversationStore interface {
	List(ctx context.Context) []model.Conversation
	Create(ctx context.Context, title string) *model.Conversation
	Update(ctx context.Context, conversationID string, messages []model.Message, title *string) error
	Load(ctx context.Context, conversationID string) *model.Conversation
	Delete(ctx context.Context, conversationID string) error
	DeleteAll(ctx context.Context) error
	Current() *model.Conversation
	Cached() []model.Conversation
}

type conversationStore struct {
	repo     repository.ConversationRepository
	sessions repository.SessionRepository
	tripID   string
	userID   string

	mu      sync.RWMutex
	cached  []model.Conversation
	current *model.Conversation
}

// NewConversationStore 创建一个新的 ConversationStore，sessions 可以为 nil。
func NewConversationStore(repo repository.ConversationRepository, sessions repository.SessionRepository, tripID, userID string) ConversationStore {
	return &conversationStore{
		repo:     repo,
		sessions: sessions,
		tripID:   tripID,
		userID:   userID,
		cached:   []model.Conversation{},
	}
}

// List 返回最近更新的至多 10 条对话，失败时返回空列表。
func (s *conversationStore) List(ctx context.Context) []model.Conversation {
	conversations, err := s.repo.ListRecent(ctx, s.tripID, s.userID, MaxVisibleConversations)
	if err != nil {
		log.Errorw("[ConversationStore] list conversations failed", "tripId", s.tripID, "userId", s.userID, "error", err)
		return []model.Conversation{}
	}

	s.mu.Lock()
	s.cached = conversations
	s.mu.Unlock()
	return cloneConversations(conversations)
}

// Create 新建一条空对话并放到缓存列表头部。
func (s *conversationStore) Create(ctx context.Context, title string) *model.Conversation {
	conversation := &model.Conversation{
		ID:       ident.GenerateID(),
		Title:    title,
		Messages: []model.Message{},
		TripID:   s.tripID,
		UserID:   s.userID,
	}
	if err := s.repo.Create(ctx, conversation); err != nil {
		log.Errorw("[ConversationStore] create conversation failed", "tripId", s.tripID, "userId", s.userID, "error", err)
		return nil
	}

	s.mu.Lock()
	s.pushFrontLocked(*conversation)
	s.mu.Unlock()
	return conversation
}

// Update 整体替换消息列表。失败时缓存保持不变。
func (s *conversationStore) Update(ctx context.Context, conversationID string, messages []model.Message, title *string) error {
	updated, err := s.repo.UpdateMessages(ctx, conversationID, s.userID, messages, title)
	if err != nil {
		log.Errorw("[ConversationStore] update conversation failed", "conversationId", conversationID, "userId", s.userID, "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if updated.TripID == s.tripID {
		s.pushFrontLocked(*updated)
	}
	if s.current != nil && s.current.ID == updated.ID {
		c := *updated
		s.current = &c
	}
	return nil
}

// Load 读取一条对话并设为当前对话，找不到或出错时返回 nil。
func (s *conversationStore) Load(ctx context.Context, conversationID string) *model.Conversation {
	conversation, err := s.repo.FindInTrip(ctx, conversationID, s.tripID, s.userID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			log.Warnf("[ConversationStore] conversation %s not found for user %s in trip %s", conversationID, s.userID, s.tripID)
		} else {
			log.Errorw("[ConversationStore] load conversation failed", "conversationId", conversationID, "error", err)
		}
		return nil
	}

	s.mu.Lock()
	c := *conversation
	s.current = &c
	s.mu.Unlock()

	if s.sessions != nil {
		if err := s.sessions.SetCurrentConversationID(ctx, s.userID, s.tripID, conversation.ID); err != nil {
			log.Error("[ConversationStore] persist current conversation failed", err)
		}
	}
	return conversation
}

// Delete 删除一条对话；若它是当前对话则清除当前对话。
func (s *conversationStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.repo.Delete(ctx, conversationID, s.userID); err != nil {
		log.Errorw("[ConversationStore] delete conversation failed", "conversationId", conversationID, "error", err)
		return err
	}

	s.mu.Lock()
	s.removeLocked(conversationID)
	wasCurrent := s.current != nil && s.current.ID == conversationID
	if wasCurrent {
		s.current = nil
	}
	s.mu.Unlock()

	if wasCurrent {
		s.clearCurrentPointer(ctx)
	}
	return nil
}

// DeleteAll 删除该行程下当前用户的全部对话。
func (s *conversationStore) DeleteAll(ctx context.Context) error {
	n, err := s.repo.DeleteByTrip(ctx, s.tripID, s.userID)
	if err != nil {
		log.Errorw("[ConversationStore] delete trip conversations failed", "tripId", s.tripID, "error", err)
		return err
	}
	log.Infof("[ConversationStore] deleted %d conversations of trip %s", n, s.tripID)

	s.mu.Lock()
	s.cached = []model.Conversation{}
	s.current = nil
	s.mu.Unlock()

	s.clearCurrentPointer(ctx)
	return nil
}

// Current 返回当前对话的副本，没有时返回 nil。
func (s *conversationStore) Current() *model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	c := *s.current
	return &c
}

// Cached 返回本地缓存的对话列表。
func (s *conversationStore) Cached() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneConversations(s.cached)
}

func (s *conversationStore) clearCurrentPointer(ctx context.Context) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.ClearCurrentConversationID(ctx, s.userID, s.tripID); err != nil {
		log.Error("[ConversationStore] clear current conversation failed", err)
	}
}

// pushFrontLocked 把对话放到缓存头部并去重，超过上限时淘汰最旧的。
func (s *conversationStore) pushFrontLocked(conversation model.Conversation) {
	s.removeLocked(conversation.ID)
	list := make([]model.Conversation, 0, len(s.cached)+1)
	list = append(list, conversation)
	list = append(list, s.cached...)
	if len(list) > MaxVisibleConversations {
		list = list[:MaxVisibleConversations]
	}
	s.cached = list
}

func (s *conversationStore) removeLocked(conversationID string) {
	out := s.cached[:0]
	for _, c := range s.cached {
		if c.ID != conversationID {
			out = append(out, c)
		}
	}
	s.cached = out
}

func cloneConversations(in []model.Conversation) []model.Conversation {
	out := make([]model.Conversation, len(in))
	copy(out, in)
	return out
}
