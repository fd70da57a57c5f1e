package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"travel-concierge-go/internal/model"
)

// ErrTripNotFound 表示行程不存在或不属于当前用户。
var ErrTripNotFound = errors.New("trip not found")

// TripRepository 读取行程、途经点与用户资料，均按 user_id 过滤。
type TripRepository interface {
	FindTrip(ctx context.Context, tripID, userID string) (*model.Trip, error)
	ListLocations(ctx context.Context, tripID, userID string) ([]model.TripLocation, error)
	FindProfile(ctx context.Context, userID string) (*model.UserProfile, error)
}

type tripRepository struct {
	db *gorm.DB
}

// NewTripRepository 创建一个新的 TripRepository 实例。
func NewTripRepository(db *gorm.DB) TripRepository {
	return &tripRepository{db: db}
}

func (r *tripRepository) FindTrip(ctx context.Context, tripID, userID string) (*model.Trip, error) {
	var trip model.Trip
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", tripID, userID).First(&trip).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("failed to find trip: %w", err)
	}
	return &trip, nil
}

// ListLocations 按 order_index 升序返回行程途经点。
func (r *tripRepository) ListLocations(ctx context.Context, tripID, userID string) ([]model.TripLocation, error) {
	var locations []model.TripLocation
	err := r.db.WithContext(ctx).
		Where("trip_id = ? AND user_id = ?", tripID, userID).
		Order("order_index ASC").
		Find(&locations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trip locations: %w", err)
	}
	return locations, nil
}

// FindProfile 查找用户资料，不存在时返回只带 ID 的空资料。
func (r *tripRepository) FindProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var profile model.UserProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.UserProfile{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to find user profile: %w", err)
	}
	return &profile, nil
}
