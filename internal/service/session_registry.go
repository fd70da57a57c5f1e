package service

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"travel-concierge-go/internal/repository"
	"travel-concierge-go/pkg/log"
)

// SessionFactory 为 (用户, 行程) 创建一个尚未加载数据的会话。
type SessionFactory func(userID, tripID string) *ChatSession

// SessionRegistry 为每个 (用户, 行程) 维护一个活跃会话，空闲超过 ttl 后淘汰。
// 这样同一用户的多个连接共享同一个 sending 状态。
// 发送中或有 WebSocket 监听的会话不会过期，回到空闲后重新按 ttl 计时。
type SessionRegistry struct {
	sessions *cache.Cache
	factory  SessionFactory
	pointers repository.SessionRepository
	ttl      time.Duration
	mu       sync.Mutex
}

// NewSessionRegistry 创建一个新的 SessionRegistry，pointers 可以为 nil。
func NewSessionRegistry(ttl time.Duration, factory SessionFactory, pointers repository.SessionRepository) *SessionRegistry {
	return &SessionRegistry{
		sessions: cache.New(ttl, 2*ttl),
		factory:  factory,
		pointers: pointers,
		ttl:      ttl,
	}
}

func sessionKey(userID, tripID string) string {
	return userID + ":" + tripID
}

// Open 返回已有会话，或创建并加载一个新会话。
// 新会话会恢复 Redis 中记录的当前对话。
func (r *SessionRegistry) Open(ctx context.Context, userID, tripID string) (*ChatSession, error) {
	key := sessionKey(userID, tripID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.getLocked(key); ok {
		return s, nil
	}

	session := r.factory(userID, tripID)
	if err := session.Refresh(ctx); err != nil {
		return nil, err
	}
	r.restoreCurrent(ctx, session, userID, tripID)
	session.setActivityHook(func(s *ChatSession) { r.touch(key, s) })

	r.sessions.Set(key, session, r.expiration(session))
	log.Infof("[SessionRegistry] opened concierge session user=%s trip=%s", userID, tripID)
	return session, nil
}

// Close 丢弃一个会话，下次 Open 时重新加载。
func (r *SessionRegistry) Close(userID, tripID string) {
	r.mu.Lock()
	r.sessions.Delete(sessionKey(userID, tripID))
	r.mu.Unlock()
}

// getLocked 取出会话并刷新过期时间，调用方持有 r.mu。
func (r *SessionRegistry) getLocked(key string) (*ChatSession, bool) {
	v, ok := r.sessions.Get(key)
	if !ok {
		return nil, false
	}
	session := v.(*ChatSession)
	r.sessions.Set(key, session, r.expiration(session))
	return session, true
}

// touch 在会话状态变化后重新设置过期时间。已被 Close 或替换的会话不会被放回。
func (r *SessionRegistry) touch(key string, session *ChatSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.sessions.Get(key)
	if !ok || v.(*ChatSession) != session {
		return
	}
	r.sessions.Set(key, session, r.expiration(session))
}

func (r *SessionRegistry) expiration(session *ChatSession) time.Duration {
	if session.Busy() {
		return cache.NoExpiration
	}
	return r.ttl
}

func (r *SessionRegistry) restoreCurrent(ctx context.Context, session *ChatSession, userID, tripID string) {
	if r.pointers == nil {
		return
	}
	convID, err := r.pointers.GetCurrentConversationID(ctx, userID, tripID)
	if err != nil {
		log.Error("[SessionRegistry] read current conversation failed", err)
		return
	}
	if convID == "" {
		return
	}
	if _, err := session.SelectConversation(ctx, convID); err != nil {
		log.Warnf("[SessionRegistry] current conversation %s could not be restored: %v", convID, err)
	}
}
