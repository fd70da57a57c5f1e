package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"travel-concierge-go/internal/model"
	"travel-concierge-go/internal/repository"
	"travel-concierge-go/pkg/ident"
	"travel-concierge-go/pkg/log"
)

// ErrSuggestionForbidden 表示请求体中的 user_id 与登录用户不一致。
var ErrSuggestionForbidden = errors.New("suggestion belongs to another user")

// ErrInvalidSuggestion 表示请求体字段格式错误。
var ErrInvalidSuggestion = errors.New("invalid suggestion")

// EventPublisher 发布建议保存事件，由 Kafka 生产者实现。
type EventPublisher interface {
	PublishSuggestionSaved(ctx context.Context, event model.SuggestionSavedEvent) error
}

// SuggestionService 处理保存到行程的建议。
type SuggestionService interface {
	Save(ctx context.Context, userID string, req model.SaveRequest) (*model.TripSuggestion, error)
	List(ctx context.Context, userID, tripID string) ([]model.TripSuggestion, error)
}

type suggestionService struct {
	repo      repository.SuggestionRepository
	trips     repository.TripRepository
	publisher EventPublisher
	now       func() time.Time
}

// NewSuggestionService 创建一个新的 SuggestionService 实例，publisher 可以为 nil。
func NewSuggestionService(repo repository.SuggestionRepository, trips repository.TripRepository, publisher EventPublisher) SuggestionService {
	return &suggestionService{repo: repo, trips: trips, publisher: publisher, now: time.Now}
}

// Save 校验归属后保存建议。事件发布失败只记录日志。
func (s *suggestionService) Save(ctx context.Context, userID string, req model.SaveRequest) (*model.TripSuggestion, error) {
	if req.UserID != userID {
		return nil, ErrSuggestionForbidden
	}
	if _, err := s.trips.FindTrip(ctx, req.TripID, userID); err != nil {
		return nil, err
	}

	savedAt := s.now().UTC()
	if req.SavedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, req.SavedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: saved_at %q: %v", ErrInvalidSuggestion, req.SavedAt, err)
		}
		savedAt = t.UTC()
	}
	content := datatypes.JSON(req.Content)
	if len(content) == 0 {
		content = datatypes.JSON("null")
	}

	suggestion := &model.TripSuggestion{
		ID:       ident.GenerateID(),
		UserID:   userID,
		TripID:   req.TripID,
		Category: req.Category,
		Content:  content,
		SavedAt:  savedAt,
	}
	if err := s.repo.Create(ctx, suggestion); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		event := model.SuggestionSavedEvent{
			SuggestionID: suggestion.ID,
			UserID:       suggestion.UserID,
			TripID:       suggestion.TripID,
			Category:     suggestion.Category,
			Content:      suggestion.Content,
			SavedAt:      suggestion.SavedAt,
		}
		if err := s.publisher.PublishSuggestionSaved(ctx, event); err != nil {
			log.Errorw("[SuggestionService] publish suggestion event failed", "suggestionId", suggestion.ID, "error", err)
		}
	}
	return suggestion, nil
}

func (s *suggestionService) List(ctx context.Context, userID, tripID string) ([]model.TripSuggestion, error) {
	if _, err := s.trips.FindTrip(ctx, tripID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListByTrip(ctx, tripID, userID)
}
