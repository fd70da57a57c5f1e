// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"travel-concierge-go/internal/middleware"
	"travel-concierge-go/internal/model"
	"travel-concierge-go/internal/repository"
	"travel-concierge-go/internal/service"
	"travel-concierge-go/pkg/log"
)

// SessionOpener 为 (用户, 行程) 打开聊天会话，由 service.SessionRegistry 实现。
type SessionOpener interface {
	Open(ctx context.Context, userID, tripID string) (*service.ChatSession, error)
}

// ConversationHandler 处理与对话相关的 API 请求。
type ConversationHandler struct {
	sessions SessionOpener
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(sessions SessionOpener) *ConversationHandler {
	return &ConversationHandler{sessions: sessions}
}

type createConversationRequest struct {
	Title string `json:"title"`
}

type updateConversationRequest struct {
	Messages []model.Message `json:"messages"`
	Title    *string         `json:"title"`
}

// openSession 从路径参数和登录用户打开会话，失败时已写入响应。
func openSession(c *gin.Context, sessions SessionOpener) (*service.ChatSession, bool) {
	session, err := sessions.Open(c.Request.Context(), middleware.UserID(c), c.Param("tripId"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return session, true
}

// ListConversations 返回最近更新的至多 10 条对话。
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	session, ok := openSession(c, h.sessions)
	if !ok {
		return
	}
	respondOK(c, session.Conversations(c.Request.Context()))
}

// CreateConversation 新建一条空对话并设为当前对话。
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	session, ok := openSession(c, h.sessions)
	if !ok {
		return
	}
	conversation, err := session.NewConversation(c.Request.Context(), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, conversation)
}

// GetConversation 读取一条对话并设为当前对话。
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	session, ok := openSession(c, h.sessions)
	if !ok {
		return
	}
	conversation, err := session.SelectConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, "Conversation not found or temporarily unavailable")
		return
	}
	respondOK(c, conversation)
}

// UpdateConversation 整体替换一条对话的消息，可选更新标题。
func (h *ConversationHandler) UpdateConversation(c *gin.Context) {
	var req updateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	session, ok := openSession(c, h.sessions)
	if !ok {
		return
	}
	if err := session.UpdateConversation(c.Request.Context(), c.Param("id"), req.Messages, req.Title); err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, nil)
}

// DeleteConversation 删除一条对话。
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	session, ok := openSession(c, h.sessions)
	if !ok {
		return
	}
	if err := session.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, nil)
}

// DeleteAllConversations 删除当前行程下的全部对话。
func (h *ConversationHandler) DeleteAllConversations(c *gin.Context) {
	session, ok := openSession(c, h.sessions)
	if !ok {
		return
	}
	if err := session.DeleteAllConversations(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, nil)
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// writeError 把业务错误映射为 HTTP 状态码。
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrTripNotFound):
		respondError(c, http.StatusNotFound, "Trip not found")
	case errors.Is(err, repository.ErrConversationNotFound):
		respondError(c, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, service.ErrSendInProgress):
		respondError(c, http.StatusConflict, "A message is already being sent")
	case errors.Is(err, service.ErrSuggestionForbidden):
		respondError(c, http.StatusForbidden, "Suggestion belongs to another user")
	case errors.Is(err, service.ErrInvalidSuggestion):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidSaveOptions):
		respondError(c, http.StatusBadRequest, "Nothing to save")
	case errors.Is(err, service.ErrConversationUnavailable):
		respondError(c, http.StatusServiceUnavailable, "Conversation temporarily unavailable, please try again")
	default:
		log.Errorf("request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		respondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
