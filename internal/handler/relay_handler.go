package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"travel-concierge-go/internal/model"
	"travel-concierge-go/pkg/log"
	"travel-concierge-go/pkg/webhook"
)

const (
	errRelayNotConfigured = "concierge relay not configured: webhook URL is missing"
	relaySuccessFallback  = "Sua solicitação foi processada com sucesso."
	maxRelayRequestBytes  = 1 << 20
)

// RelayHandler 是内部转发端点：把聊天 payload 原样转发到外部自动化 webhook，
// 并把结果规范化为 {success, message, saveOptions, error}。
type RelayHandler struct {
	webhookURL string
	forwarder  webhook.Forwarder
}

// NewRelayHandler 创建一个新的 RelayHandler。webhookURL 为空时所有请求都返回 500。
func NewRelayHandler(webhookURL string, forwarder webhook.Forwarder) *RelayHandler {
	return &RelayHandler{webhookURL: strings.TrimSpace(webhookURL), forwarder: forwarder}
}

// upstreamReply 是外部 webhook 成功时返回体中我们关心的字段。
type upstreamReply struct {
	Message     string             `json:"message"`
	SaveOptions *model.SaveOptions `json:"saveOptions"`
}

// Relay 处理 POST /functions/v1/concierge-relay。
func (h *RelayHandler) Relay(c *gin.Context) {
	if h.webhookURL == "" {
		log.Errorf("[RelayHandler] %s", errRelayNotConfigured)
		relayFailure(c, errRelayNotConfigured)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRelayRequestBytes))
	if err != nil {
		relayFailure(c, fmt.Sprintf("failed to read request body: %v", err))
		return
	}
	if !json.Valid(body) {
		relayFailure(c, "invalid request body: expected JSON")
		return
	}

	start := time.Now()
	resp, err := h.forwarder.Forward(c.Request.Context(), h.webhookURL, body)
	if err != nil {
		log.Errorw("[RelayHandler] webhook call failed", "error", err, "latency", time.Since(start).String())
		relayFailure(c, err.Error())
		return
	}
	if !resp.OK() {
		log.Warnw("[RelayHandler] webhook returned non-2xx", "status", resp.StatusCode, "latency", time.Since(start).String())
		relayFailure(c, fmt.Sprintf("webhook request failed with status %d: %s", resp.StatusCode, string(resp.Body)))
		return
	}

	var reply upstreamReply
	if len(strings.TrimSpace(string(resp.Body))) > 0 {
		if err := json.Unmarshal(resp.Body, &reply); err != nil {
			log.Warnw("[RelayHandler] webhook returned invalid JSON", "error", err)
			relayFailure(c, fmt.Sprintf("failed to parse webhook response: %v", err))
			return
		}
	}
	if strings.TrimSpace(reply.Message) == "" {
		reply.Message = relaySuccessFallback
	}

	log.Infow("[RelayHandler] webhook call succeeded", "status", resp.StatusCode, "latency", time.Since(start).String())
	c.JSON(http.StatusOK, model.RelayResult{
		Success:     true,
		Message:     reply.Message,
		SaveOptions: reply.SaveOptions,
	})
}

func relayFailure(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, model.RelayResult{Success: false, Error: msg})
}
