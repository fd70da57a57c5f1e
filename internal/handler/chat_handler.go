package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"travel-concierge-go/internal/middleware"
	"travel-concierge-go/internal/model"
	"travel-concierge-go/internal/service"
	"travel-concierge-go/pkg/log"
	"travel-concierge-go/pkg/token"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

const wsWriteTimeout = 10 * time.Second

// ChatHandler 负责礼宾聊天：HTTP 发送接口和 WebSocket 实时连接。
type ChatHandler struct {
	sessions   SessionOpener
	jwtManager *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(sessions SessionOpener, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{sessions: sessions, jwtManager: jwtManager}
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type saveSuggestionRequest struct {
	SaveOptions *model.SaveOptions `json:"saveOptions"`
}

// clientEvent 是 WebSocket 客户端发来的指令。
type clientEvent struct {
	Type           string             `json:"type"`
	Content        string             `json:"content,omitempty"`
	Title          string             `json:"title,omitempty"`
	ConversationID string             `json:"conversationId,omitempty"`
	SaveOptions    *model.SaveOptions `json:"saveOptions,omitempty"`
}

// serverEvent 是推送给 WebSocket 客户端的事件。
type serverEvent struct {
	Type           string                `json:"type"`
	ConversationID string                `json:"conversationId,omitempty"`
	Message        *model.Message        `json:"message,omitempty"`
	State          *service.SessionState `json:"state,omitempty"`
	Conversation   *model.Conversation   `json:"conversation,omitempty"`
	Saved          *model.SaveRequest    `json:"saved,omitempty"`
	Error          string                `json:"error,omitempty"`
	Timestamp      int64                 `json:"timestamp"`
}

// SendMessage 处理 POST /api/v1/trips/:tripId/concierge/messages，等待回复后返回最新消息列表。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	session, ok := openSession(c, h.sessions)
	if !ok {
		return
	}

	err := session.SendMessage(c.Request.Context(), req.Content)
	if err != nil && !errors.Is(err, service.ErrPersistence) {
		writeError(c, err)
		return
	}
	data := gin.H{"state": session.State(), "messages": session.Messages()}
	if err != nil {
		// 回复已生成但未能保存，客户端提示用户稍后重试
		log.Warnf("[ChatHandler] %v", err)
		data["warning"] = "Reply received but the conversation could not be saved"
	}
	respondOK(c, data)
}

// GetState 返回会话状态、当前消息与最近的对话列表。
func (h *ChatHandler) GetState(c *gin.Context) {
	session, ok := openSession(c, h.sessions)
	if !ok {
		return
	}
	respondOK(c, gin.H{
		"state":         session.State(),
		"messages":      session.Messages(),
		"conversations": session.Store().Cached(),
	})
}

// SaveSuggestion 把一条回复中的建议保存到行程，使用调用者自己的 token 转发。
func (h *ChatHandler) SaveSuggestion(c *gin.Context) {
	var req saveSuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	session, ok := openSession(c, h.sessions)
	if !ok {
		return
	}
	result, err := session.SaveToTrip(c.Request.Context(), middleware.AccessToken(c), req.SaveOptions, nil)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSaveOptions) {
			writeError(c, err)
			return
		}
		log.Errorf("[ChatHandler] save suggestion failed: %v", err)
		respondError(c, http.StatusBadGateway, "Failed to save suggestion to trip")
		return
	}
	respondOK(c, result)
}

// GetWebsocketToken 返回一个用于建立 WebSocket 连接的短期令牌。
func (h *ChatHandler) GetWebsocketToken(c *gin.Context) {
	wsToken, err := h.jwtManager.GenerateWebsocketToken(middleware.UserID(c))
	if err != nil {
		log.Error("生成 WebSocket 令牌失败", err)
		respondError(c, http.StatusInternalServerError, "Failed to generate websocket token")
		return
	}
	respondOK(c, gin.H{"token": wsToken, "expiresIn": int(token.WebsocketTokenDuration.Seconds())})
}

// Handle 处理一个传入的 WebSocket 连接：GET /chat/:token?tripId=...
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyPurpose(c.Param("token"), token.PurposeWebsocket)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "无效的 token")
		return
	}
	tripID := c.Query("tripId")
	if tripID == "" {
		respondError(c, http.StatusBadRequest, "tripId is required")
		return
	}

	session, err := h.sessions.Open(c.Request.Context(), claims.UserID, tripID)
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	// 发送在后台进行，读循环继续处理其他指令；连接断开不取消进行中的发送
	var inflight sync.WaitGroup
	defer inflight.Wait()

	listener := &wsListener{conn: conn}
	session.SetListener(listener)
	defer session.ClearListener(listener)

	log.Infof("WebSocket 连接已建立，用户: %s, 行程: %s", claims.UserID, tripID)
	state := session.State()
	listener.send(serverEvent{Type: "status", State: &state})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			return
		}

		var ev clientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			// 纯文本消息视为聊天内容
			ev = clientEvent{Type: "message", Content: string(raw)}
		}
		h.dispatch(context.WithoutCancel(c.Request.Context()), session, claims.UserID, listener, ev, &inflight)
	}
}

func (h *ChatHandler) dispatch(ctx context.Context, session *service.ChatSession, userID string, l *wsListener, ev clientEvent, inflight *sync.WaitGroup) {
	switch strings.ToLower(ev.Type) {
	case "message":
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			if err := session.SendMessage(ctx, ev.Content); err != nil {
				log.Warnf("[ChatHandler] send message: %v", err)
				l.send(serverEvent{Type: "error", Error: err.Error()})
			}
		}()
	case "new_conversation":
		conversation, err := session.NewConversation(ctx, ev.Title)
		if err != nil {
			l.send(serverEvent{Type: "error", Error: err.Error()})
			return
		}
		l.send(serverEvent{Type: "conversation", ConversationID: conversation.ID, Conversation: conversation})
	case "select_conversation":
		conversation, err := session.SelectConversation(ctx, ev.ConversationID)
		if err != nil {
			l.send(serverEvent{Type: "error", Error: err.Error()})
			return
		}
		l.send(serverEvent{Type: "conversation", ConversationID: conversation.ID, Conversation: conversation})
	case "save":
		accessToken, err := h.jwtManager.GenerateToken(userID)
		if err != nil {
			l.send(serverEvent{Type: "error", Error: err.Error()})
			return
		}
		_, err = session.SaveToTrip(ctx, accessToken, ev.SaveOptions, func(req model.SaveRequest) {
			l.send(serverEvent{Type: "saved", Saved: &req})
		})
		if err != nil {
			log.Warnf("[ChatHandler] save suggestion: %v", err)
			l.send(serverEvent{Type: "error", Error: err.Error()})
		}
	default:
		l.send(serverEvent{Type: "error", Error: "unknown event type: " + ev.Type})
	}
}

// wsListener 把会话事件写到 WebSocket 连接，写操作需要串行。
type wsListener struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (l *wsListener) OnMessage(conversationID string, message model.Message) {
	l.send(serverEvent{Type: "message", ConversationID: conversationID, Message: &message})
}

func (l *wsListener) OnStatus(state service.SessionState) {
	l.send(serverEvent{Type: "status", ConversationID: state.ConversationID, State: &state})
}

func (l *wsListener) send(ev serverEvent) {
	ev.Timestamp = time.Now().UnixMilli()
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error("序列化 WebSocket 事件失败", err)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := l.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
	}
}
