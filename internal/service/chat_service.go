// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"travel-concierge-go/internal/model"
	"travel-concierge-go/internal/repository"
	"travel-concierge-go/pkg/ident"
	"travel-concierge-go/pkg/log"
	"travel-concierge-go/pkg/relay"
)

var (
	// ErrSendInProgress 表示同一会话已有消息在发送中。
	ErrSendInProgress = errors.New("a message is already being sent in this session")
	// ErrConversationUnavailable 表示对话无法创建或读取，调用方可稍后重试。
	ErrConversationUnavailable = errors.New("conversation unavailable")
	// ErrPersistence 表示回复已生成但对话未能保存。
	ErrPersistence = errors.New("failed to persist conversation")
	// ErrInvalidSaveOptions 表示建议中没有可保存的内容。
	ErrInvalidSaveOptions = errors.New("save options carry no data")
)

const (
	errorGlyph              = "❌ "
	genericRelayError       = "Desculpe, não foi possível processar sua mensagem. Tente novamente."
	communicationErrorLabel = "Erro de comunicação: "
	defaultConversationName = "Nova conversa"
	maxTitleRunes           = 50
	isoTimestampLayout      = "2006-01-02T15:04:05.000Z07:00"
)

// SessionState 是会话对外暴露的状态。
type SessionState struct {
	ConversationID    string `json:"conversationId"`
	Sending           bool   `json:"sending"`
	ProcessingMessage string `json:"processingMessage"`
}

// SessionListener 接收会话中新增的消息和状态变化，WebSocket 连接实现该接口。
type SessionListener interface {
	OnMessage(conversationID string, message model.Message)
	OnStatus(state SessionState)
}

// ChatSessionConfig 是会话的静态参数。
type ChatSessionConfig struct {
	Category        string
	Language        string
	DefaultTimezone string
}

// ChatSessionDeps 是会话依赖的协作者。Random 和 Now 可以在测试中替换。
type ChatSessionDeps struct {
	Store  ConversationStore
	Trips  repository.TripRepository
	Relay  relay.Relayer
	Saver  relay.Saver
	Random ident.Source
	Now    func() time.Time
}

// ChatSession 持有一个 (用户, 行程) 当前对话的内存消息列表，负责发送消息并记录回复。
// 状态机：idle -> sending -> idle，同一时刻只允许一条消息在发送中。
type ChatSession struct {
	userID string
	tripID string
	cfg    ChatSessionConfig

	store   ConversationStore
	trips   repository.TripRepository
	relayer relay.Relayer
	saver   relay.Saver
	rnd     ident.Source
	now     func() time.Time

	mu             sync.Mutex
	trip           model.TripData
	user           model.UserData
	locations      []model.TripLocation
	conversationID string
	// generation 在切换对话时递增，用于丢弃过期的回复
	generation uint64
	messages   []model.Message
	sending    bool
	processing string
	listener   SessionListener
	// onActivity 在 sending 或监听者变化后调用，注册表据此决定会话是否可以过期
	onActivity func(*ChatSession)
}

// NewChatSession 创建一个会话，调用 Refresh 之前行程数据为空。
func NewChatSession(userID, tripID string, cfg ChatSessionConfig, deps ChatSessionDeps) *ChatSession {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	rnd := deps.Random
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &ChatSession{
		userID:   userID,
		tripID:   tripID,
		cfg:      cfg,
		store:    deps.Store,
		trips:    deps.Trips,
		relayer:  deps.Relay,
		saver:    deps.Saver,
		rnd:      rnd,
		now:      now,
		trip:     model.TripData{ID: tripID},
		user:     model.UserData{ID: userID, Preferences: map[string]interface{}{}},
		messages: []model.Message{},
	}
}

// Refresh 重新读取行程、用户资料与途经点。行程不存在时返回错误；
// 途经点读取失败时记录日志并保留空列表。
func (s *ChatSession) Refresh(ctx context.Context) error {
	trip, err := s.trips.FindTrip(ctx, s.tripID, s.userID)
	if err != nil {
		return err
	}
	user := model.UserData{ID: s.userID, Preferences: map[string]interface{}{}}
	if profile, err := s.trips.FindProfile(ctx, s.userID); err != nil {
		log.Errorw("[ChatSession] load user profile failed", "userId", s.userID, "error", err)
	} else {
		user = profile.ToUserData()
	}
	locations, err := s.trips.ListLocations(ctx, s.tripID, s.userID)
	if err != nil {
		log.Errorw("[ChatSession] load trip locations failed", "tripId", s.tripID, "error", err)
		locations = []model.TripLocation{}
	}

	s.mu.Lock()
	s.trip = trip.ToTripData()
	s.user = user
	s.locations = locations
	s.mu.Unlock()
	return nil
}

// SetListener 设置事件监听者，传 nil 取消。
func (s *ChatSession) SetListener(listener SessionListener) {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.notifyActivity()
}

// ClearListener 仅当当前监听者是 listener 时取消它，连接断开时调用。
func (s *ChatSession) ClearListener(listener SessionListener) {
	s.mu.Lock()
	if s.listener == listener {
		s.listener = nil
	}
	s.mu.Unlock()
	s.notifyActivity()
}

// Busy 报告会话是否正在发送或有连接在监听。
func (s *ChatSession) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending || s.listener != nil
}

func (s *ChatSession) setActivityHook(hook func(*ChatSession)) {
	s.mu.Lock()
	s.onActivity = hook
	s.mu.Unlock()
}

func (s *ChatSession) notifyActivity() {
	s.mu.Lock()
	hook := s.onActivity
	s.mu.Unlock()
	if hook != nil {
		hook(s)
	}
}

// Store 返回会话使用的对话存储。
func (s *ChatSession) Store() ConversationStore {
	return s.store
}

// State 返回当前状态。
func (s *ChatSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Messages 返回当前对话消息列表的副本。
func (s *ChatSession) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.messages)
}

// SendMessage 发送一条用户消息并记录回复。
// 文本去空白后为空时直接返回 nil；已有消息在发送时返回 ErrSendInProgress。
// 转发失败会转成对话中的 system 消息，不作为错误返回。
func (s *ChatSession) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// 1. 同步追加用户消息，并进入 sending 状态
	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return ErrSendInProgress
	}
	userMessage := s.newMessageLocked(model.MessageTypeUser, text, nil)
	s.messages = append(s.messages, userMessage)
	s.sending = true
	s.processing = ident.RandomProcessingMessage(s.rnd)
	gen := s.generation
	convID := s.conversationID
	listener := s.listener
	state := s.stateLocked()
	s.mu.Unlock()

	s.notifyActivity()
	if listener != nil {
		listener.OnMessage(convID, userMessage)
		listener.OnStatus(state)
	}

	// 无论成功、业务失败还是异常，都要退出 sending 状态
	defer s.finishSending()

	// 页面关闭或连接断开不取消进行中的请求，超时由 relay 客户端控制
	ctx = context.WithoutCancel(ctx)

	// 2. 第一次交互时创建对话
	if convID == "" {
		convID = s.ensureConversation(ctx, gen, text)
	}

	// 3. 构建 payload
	s.mu.Lock()
	payload := BuildChatPayload(PayloadInput{
		Category:        s.cfg.Category,
		Trip:            s.trip,
		User:            s.user,
		ConversationID:  convID,
		Locations:       s.locations,
		UserMessage:     text,
		SessionID:       ident.GenerateSessionID(s.now(), s.rnd),
		Language:        s.cfg.Language,
		DefaultTimezone: s.cfg.DefaultTimezone,
		Now:             s.now,
	})
	s.mu.Unlock()

	// 4. 调用转发端点
	result, relayErr := s.relayer.Relay(ctx, payload)

	// 5. 记录回复
	reply := s.replyMessage(result, relayErr)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		log.Warnw("[ChatSession] conversation changed while waiting for relay, dropping reply",
			"conversationId", convID, "userId", s.userID)
		return nil
	}
	reply = s.stampLocked(reply)
	s.messages = append(s.messages, reply)
	snapshot := cloneMessages(s.messages)
	listener = s.listener
	s.mu.Unlock()

	if listener != nil {
		listener.OnMessage(convID, reply)
	}

	if convID == "" {
		return fmt.Errorf("%w: no conversation to save into", ErrPersistence)
	}
	if err := s.store.Update(ctx, convID, snapshot, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// replyMessage 把转发结果转换成 bot 或 system 消息。
func (s *ChatSession) replyMessage(result *model.RelayResult, relayErr error) model.Message {
	switch {
	case relayErr != nil:
		log.Errorw("[ChatSession] relay call failed", "tripId", s.tripID, "userId", s.userID, "error", relayErr)
		return model.Message{Type: model.MessageTypeSystem, Content: errorGlyph + communicationErrorLabel + relayErr.Error()}
	case result == nil:
		return model.Message{Type: model.MessageTypeSystem, Content: errorGlyph + genericRelayError}
	case result.Success:
		return model.Message{Type: model.MessageTypeBot, Content: result.Message, SaveOptions: result.SaveOptions}
	default:
		text := strings.TrimSpace(result.Error)
		if text == "" {
			text = genericRelayError
		}
		return model.Message{Type: model.MessageTypeSystem, Content: errorGlyph + text}
	}
}

func (s *ChatSession) finishSending() {
	s.mu.Lock()
	s.sending = false
	s.processing = ""
	listener := s.listener
	state := s.stateLocked()
	s.mu.Unlock()
	s.notifyActivity()
	if listener != nil {
		listener.OnStatus(state)
	}
}

// ensureConversation 为第一次交互创建对话，失败时返回空字符串，消息只保留在内存中。
func (s *ChatSession) ensureConversation(ctx context.Context, gen uint64, firstMessage string) string {
	conversation := s.store.Create(ctx, titleFromMessage(firstMessage))
	if conversation == nil {
		return ""
	}
	s.store.Load(ctx, conversation.ID)

	s.mu.Lock()
	if s.generation == gen && s.conversationID == "" {
		s.conversationID = conversation.ID
	}
	s.mu.Unlock()
	return conversation.ID
}

// SaveToTrip 把建议保存到行程。onSaved 在成功后收到实际提交的请求。
func (s *ChatSession) SaveToTrip(ctx context.Context, accessToken string, opts *model.SaveOptions, onSaved func(model.SaveRequest)) (map[string]interface{}, error) {
	if opts == nil || len(opts.Data) == 0 {
		return nil, ErrInvalidSaveOptions
	}
	category := opts.Category
	if category == "" {
		category = s.cfg.Category
	}
	req := model.SaveRequest{
		UserID:   s.userID,
		TripID:   s.tripID,
		Category: category,
		Content:  opts.Data,
		SavedAt:  s.now().UTC().Format(isoTimestampLayout),
	}

	result, err := s.saver.Save(ctx, accessToken, req)
	if err != nil {
		return nil, fmt.Errorf("failed to save suggestion to trip: %w", err)
	}
	if onSaved != nil {
		onSaved(req)
	}
	return result, nil
}

// NewConversation 创建一条新对话并切换过去。
func (s *ChatSession) NewConversation(ctx context.Context, title string) (*model.Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = defaultConversationName
	}
	conversation := s.store.Create(ctx, title)
	if conversation == nil {
		return nil, ErrConversationUnavailable
	}
	s.store.Load(ctx, conversation.ID)
	s.switchTo(conversation.ID, conversation.Messages)
	return conversation, nil
}

// SelectConversation 读取一条已有对话并切换过去，进行中的回复会被丢弃。
func (s *ChatSession) SelectConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	conversation := s.store.Load(ctx, conversationID)
	if conversation == nil {
		return nil, ErrConversationUnavailable
	}
	s.switchTo(conversation.ID, conversation.Messages)
	return conversation, nil
}

// UpdateConversation 整体替换一条对话的消息。
// 对当前对话的修改在发送中时被拒绝，成功后同步内存中的消息列表。
func (s *ChatSession) UpdateConversation(ctx context.Context, conversationID string, messages []model.Message, title *string) error {
	s.mu.Lock()
	isActive := s.conversationID == conversationID
	if isActive && s.sending {
		s.mu.Unlock()
		return ErrSendInProgress
	}
	s.mu.Unlock()

	if messages == nil {
		messages = []model.Message{}
	}
	if err := s.store.Update(ctx, conversationID, messages, title); err != nil {
		return err
	}

	if isActive {
		s.mu.Lock()
		if s.conversationID == conversationID && !s.sending {
			s.messages = cloneMessages(messages)
		}
		s.mu.Unlock()
	}
	return nil
}

// DeleteConversation 删除一条对话，若是当前对话则清空消息列表。
func (s *ChatSession) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.store.Delete(ctx, conversationID); err != nil {
		return err
	}
	s.mu.Lock()
	isActive := s.conversationID == conversationID
	s.mu.Unlock()
	if isActive {
		s.switchTo("", nil)
	}
	return nil
}

// DeleteAllConversations 删除当前行程的全部对话。
func (s *ChatSession) DeleteAllConversations(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx); err != nil {
		return err
	}
	s.switchTo("", nil)
	return nil
}

// Conversations 返回最近的对话列表。
func (s *ChatSession) Conversations(ctx context.Context) []model.Conversation {
	return s.store.List(ctx)
}

func (s *ChatSession) switchTo(conversationID string, messages []model.Message) {
	s.mu.Lock()
	s.generation++
	s.conversationID = conversationID
	s.messages = cloneMessages(messages)
	listener := s.listener
	state := s.stateLocked()
	s.mu.Unlock()
	if listener != nil {
		listener.OnStatus(state)
	}
}

func (s *ChatSession) newMessageLocked(kind model.MessageType, content string, opts *model.SaveOptions) model.Message {
	return s.stampLocked(model.Message{Type: kind, Content: content, SaveOptions: opts})
}

func (s *ChatSession) stampLocked(m model.Message) model.Message {
	m.ID = ident.GenerateID()
	m.Timestamp = s.now().UTC().Format(isoTimestampLayout)
	return m
}

func (s *ChatSession) stateLocked() SessionState {
	return SessionState{
		ConversationID:    s.conversationID,
		Sending:           s.sending,
		ProcessingMessage: s.processing,
	}
}

func titleFromMessage(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return defaultConversationName
	}
	if utf8.RuneCountInString(text) <= maxTitleRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxTitleRunes]) + "..."
}

func cloneMessages(in []model.Message) []model.Message {
	out := make([]model.Message, len(in))
	copy(out, in)
	return out
}
