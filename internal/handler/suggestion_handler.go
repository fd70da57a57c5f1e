package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"travel-concierge-go/internal/middleware"
	"travel-concierge-go/internal/model"
	"travel-concierge-go/internal/service"
)

// SuggestionHandler 处理保存到行程的建议。
type SuggestionHandler struct {
	service service.SuggestionService
}

// NewSuggestionHandler 创建一个新的 SuggestionHandler。
func NewSuggestionHandler(service service.SuggestionService) *SuggestionHandler {
	return &SuggestionHandler{service: service}
}

// SaveSuggestion 处理 POST /api/v1/trips/suggestions。
func (h *SuggestionHandler) SaveSuggestion(c *gin.Context) {
	var req model.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	suggestion, err := h.service.Save(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, suggestion)
}

// ListSuggestions 返回行程中已保存的建议。
func (h *SuggestionHandler) ListSuggestions(c *gin.Context) {
	suggestions, err := h.service.List(c.Request.Context(), middleware.UserID(c), c.Param("tripId"))
	if err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, suggestions)
}
