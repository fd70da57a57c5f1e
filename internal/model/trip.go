package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const dateLayout = "2006-01-02"

// Trip 对应 'trips' 表，由行程模块维护，这里只读。
type Trip struct {
	ID            string         `gorm:"primaryKey;size:64" json:"id"`
	UserID        string         `gorm:"size:64;not null;index" json:"userId"`
	Destination   string         `gorm:"size:255" json:"destination"`
	StartDate     string         `gorm:"size:10" json:"startDate"`
	EndDate       string         `gorm:"size:10" json:"endDate"`
	DurationDays  int            `json:"durationDays"`
	Destinations  datatypes.JSON `json:"destinations"`
	BudgetRange   string         `gorm:"size:64" json:"budgetRange"`
	TravelerCount int            `json:"travelerCount"`
	Status        string         `gorm:"size:32" json:"status"`
}

func (Trip) TableName() string {
	return "trips"
}

// TripData 是构建请求 payload 时使用的行程快照。
type TripData struct {
	ID            string
	Destination   string
	StartDate     string
	EndDate       string
	DurationDays  int
	Destinations  []string
	BudgetRange   string
	TravelerCount int
	Status        string
}

// ToTripData 转换为 TripData。destinations 无法解码时视为空；
// duration_days 为 0 时根据起止日期推算。
func (t *Trip) ToTripData() TripData {
	var destinations []string
	if len(t.Destinations) > 0 {
		if err := json.Unmarshal(t.Destinations, &destinations); err != nil {
			destinations = nil
		}
	}
	duration := t.DurationDays
	if duration == 0 {
		duration = daysBetween(t.StartDate, t.EndDate)
	}
	return TripData{
		ID:            t.ID,
		Destination:   t.Destination,
		StartDate:     t.StartDate,
		EndDate:       t.EndDate,
		DurationDays:  duration,
		Destinations:  destinations,
		BudgetRange:   t.BudgetRange,
		TravelerCount: t.TravelerCount,
		Status:        t.Status,
	}
}

func daysBetween(start, end string) int {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return 0
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil || e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours() / 24)
}

// TripLocation 对应 'trip_locations' 表，是行程路线中的有序途经点。
type TripLocation struct {
	ID           uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	TripID       string  `gorm:"size:64;not null;index" json:"tripId"`
	UserID       string  `gorm:"size:64;not null;index" json:"userId"`
	LocationName string  `gorm:"size:255;not null" json:"locationName"`
	LocationType string  `gorm:"size:64" json:"locationType"`
	OrderIndex   int     `gorm:"not null" json:"orderIndex"`
	Notes        *string `gorm:"type:text" json:"notes,omitempty"`
}

func (TripLocation) TableName() string {
	return "trip_locations"
}

// UserProfile 对应 'user_profiles' 表，保存用户偏好与时区。
type UserProfile struct {
	UserID      string         `gorm:"primaryKey;size:64" json:"userId"`
	Preferences datatypes.JSON `json:"preferences"`
	Timezone    string         `gorm:"size:64" json:"timezone"`
}

func (UserProfile) TableName() string {
	return "user_profiles"
}

// UserData 是构建请求 payload 时使用的用户快照。
type UserData struct {
	ID          string
	Preferences map[string]interface{}
	Timezone    string
}

// ToUserData 转换为 UserData，偏好无法解码时为空对象。
func (p *UserProfile) ToUserData() UserData {
	prefs := map[string]interface{}{}
	if len(p.Preferences) > 0 {
		if err := json.Unmarshal(p.Preferences, &prefs); err != nil || prefs == nil {
			prefs = map[string]interface{}{}
		}
	}
	return UserData{ID: p.UserID, Preferences: prefs, Timezone: p.Timezone}
}
