package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"travel-concierge-go/internal/model"
)

// SuggestionRepository 持久化用户保存到行程中的建议。
type SuggestionRepository interface {
	Create(ctx context.Context, suggestion *model.TripSuggestion) error
	ListByTrip(ctx context.Context, tripID, userID string) ([]model.TripSuggestion, error)
}

type suggestionRepository struct {
	db *gorm.DB
}

// NewSuggestionRepository 创建一个新的 SuggestionRepository 实例。
func NewSuggestionRepository(db *gorm.DB) SuggestionRepository {
	return &suggestionRepository{db: db}
}

func (r *suggestionRepository) Create(ctx context.Context, suggestion *model.TripSuggestion) error {
	if err := r.db.WithContext(ctx).Create(suggestion).Error; err != nil {
		return fmt.Errorf("failed to create suggestion: %w", err)
	}
	return nil
}

func (r *suggestionRepository) ListByTrip(ctx context.Context, tripID, userID string) ([]model.TripSuggestion, error) {
	var suggestions []model.TripSuggestion
	err := r.db.WithContext(ctx).
		Where("trip_id = ? AND user_id = ?", tripID, userID).
		Order("saved_at DESC").
		Find(&suggestions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	return suggestions, nil
}
