package service

import (
	"sort"
	"time"
	_ "time/tzdata"

	"github.com/samber/lo"

	"travel-concierge-go/internal/model"
)

// PayloadInput 汇总构建一次请求 payload 需要的全部输入。
type PayloadInput struct {
	Category       string
	Trip           model.TripData
	User           model.UserData
	ConversationID string
	Locations      []model.TripLocation
	UserMessage    string
	SessionID      string
	Language       string
	// DefaultTimezone 在用户资料没有时区时使用
	DefaultTimezone string
	Now             func() time.Time
}

// BuildChatPayload 根据行程、用户、途经点和新消息组装请求 payload。
// 不修改任何输入；时间戳与时区在每次调用时重新计算。
func BuildChatPayload(in PayloadInput) model.ChatPayload {
	now := time.Now
	if in.Now != nil {
		now = in.Now
	}
	loc := resolveLocation(in.User.Timezone, in.DefaultTimezone)
	ts := now().In(loc)

	return model.ChatPayload{
		UserData: model.PayloadUser{
			UserID:      in.User.ID,
			Preferences: clonePreferences(in.User.Preferences),
			Timezone:    loc.String(),
		},
		TripData: model.PayloadTrip{
			TripID:          in.Trip.ID,
			Destination:     in.Trip.Destination,
			StartDate:       in.Trip.StartDate,
			EndDate:         in.Trip.EndDate,
			DurationDays:    in.Trip.DurationDays,
			Destinations:    append([]string{}, in.Trip.Destinations...),
			BudgetRange:     in.Trip.BudgetRange,
			TravelerCount:   in.Trip.TravelerCount,
			Status:          in.Trip.Status,
			RoteiroDestinos: toPayloadLocations(in.Locations),
		},
		RequestData: model.PayloadRequest{
			Category:       in.Category,
			UserMessage:    in.UserMessage,
			ConversationID: in.ConversationID,
			SessionID:      in.SessionID,
			Timestamp:      ts.Format(time.RFC3339),
			Language:       in.Language,
		},
	}
}

func toPayloadLocations(locations []model.TripLocation) []model.PayloadLocation {
	out := lo.Map(locations, func(l model.TripLocation, _ int) model.PayloadLocation {
		return model.PayloadLocation{
			LocationName: l.LocationName,
			LocationType: l.LocationType,
			OrderIndex:   l.OrderIndex,
			Notes:        lo.FromPtrOr(l.Notes, ""),
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

func clonePreferences(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// resolveLocation 依次尝试用户时区、默认时区，最后回退到 UTC。
func resolveLocation(names ...string) *time.Location {
	for _, name := range names {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}
