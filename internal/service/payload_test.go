package service

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"travel-concierge-go/internal/model"
)

func parisTrip() model.TripData {
	return model.TripData{
		ID:            "t1",
		Destination:   "Paris",
		StartDate:     "2024-03-15",
		EndDate:       "2024-03-22",
		DurationDays:  7,
		Destinations:  []string{"Torre Eiffel"},
		BudgetRange:   "R$ 5000-8000",
		TravelerCount: 2,
		Status:        "Confirmada",
	}
}

func TestBuildChatPayload_EndToEndScenario(t *testing.T) {
	payload := BuildChatPayload(PayloadInput{
		Category:       "concierge",
		Trip:           parisTrip(),
		User:           model.UserData{ID: "u1", Preferences: map[string]interface{}{}},
		ConversationID: "conv-1",
		UserMessage:    "Onde comer?",
		Language:       "pt-BR",
	})

	if payload.RequestData.UserMessage != "Onde comer?" {
		t.Fatalf("user_message = %q", payload.RequestData.UserMessage)
	}
	if payload.TripData.TripID != "t1" {
		t.Fatalf("trip_id = %q", payload.TripData.TripID)
	}

	// 通过 JSON 字段名再确认一次
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	var wire map[string]map[string]interface{}
	if err := json.Unmarshal(b, &wire); err != nil {
		t.Fatal(err)
	}
	if wire["request_data"]["user_message"] != "Onde comer?" || wire["trip_data"]["trip_id"] != "t1" {
		t.Fatalf("unexpected wire shape: %s", b)
	}
	if _, ok := wire["trip_data"]["roteiro_destinos"].([]interface{}); !ok {
		t.Fatalf("roteiro_destinos must be an array even when empty: %s", b)
	}
}

func TestBuildChatPayload_LocationsMappedAndOrdered(t *testing.T) {
	notes := "comprar ingressos"
	locations := []model.TripLocation{
		{LocationName: "Louvre", LocationType: "museum", OrderIndex: 2},
		{LocationName: "Torre Eiffel", LocationType: "landmark", OrderIndex: 1, Notes: &notes},
	}
	payload := BuildChatPayload(PayloadInput{Trip: parisTrip(), Locations: locations})

	got := payload.TripData.RoteiroDestinos
	want := []model.PayloadLocation{
		{LocationName: "Torre Eiffel", LocationType: "landmark", OrderIndex: 1, Notes: "comprar ingressos"},
		{LocationName: "Louvre", LocationType: "museum", OrderIndex: 2, Notes: ""},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
	if locations[0].LocationName != "Louvre" {
		t.Fatal("input locations were reordered")
	}
}

func TestBuildChatPayload_DoesNotMutateOrAliasInputs(t *testing.T) {
	trip := parisTrip()
	prefs := map[string]interface{}{"cuisine": "francesa"}
	user := model.UserData{ID: "u1", Preferences: prefs}

	payload := BuildChatPayload(PayloadInput{Trip: trip, User: user})

	payload.TripData.Destinations[0] = "changed"
	payload.UserData.Preferences["cuisine"] = "changed"

	if trip.Destinations[0] != "Torre Eiffel" {
		t.Fatal("trip destinations aliased by payload")
	}
	if prefs["cuisine"] != "francesa" {
		t.Fatal("preferences aliased by payload")
	}
}

func TestBuildChatPayload_TimestampAndTimezonePerCall(t *testing.T) {
	calls := 0
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	now := func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Hour)
	}
	in := PayloadInput{
		Trip:            parisTrip(),
		User:            model.UserData{ID: "u1", Timezone: "Europe/Paris"},
		DefaultTimezone: "America/Sao_Paulo",
		Now:             now,
	}

	first := BuildChatPayload(in)
	second := BuildChatPayload(in)
	if first.RequestData.Timestamp == second.RequestData.Timestamp {
		t.Fatal("timestamp must be recomputed on every call")
	}
	if first.UserData.Timezone != "Europe/Paris" {
		t.Fatalf("timezone = %q", first.UserData.Timezone)
	}

	in.User.Timezone = ""
	third := BuildChatPayload(in)
	if third.UserData.Timezone != "America/Sao_Paulo" {
		t.Fatalf("expected default timezone, got %q", third.UserData.Timezone)
	}
	if _, err := time.Parse(time.RFC3339, third.RequestData.Timestamp); err != nil {
		t.Fatalf("timestamp not RFC3339: %v", err)
	}
}
