package model

import (
	"testing"
)

func TestDecodeMessageLog_Sequence(t *testing.T) {
	raw := []byte(`[{"id":"m1","type":"user","content":"Oi","timestamp":"2024-03-15T10:00:00Z"},
		{"id":"m2","type":"bot","content":"Olá","timestamp":"2024-03-15T10:00:01Z","saveOptions":{"data":{"name":"Le Marais"}}}]`)

	log := DecodeMessageLog(raw)
	if log.Kind != MessageLogSequence {
		t.Fatalf("expected sequence, got %v (%v)", log.Kind, log.Err)
	}
	msgs := log.Sequence()
	if len(msgs) != 2 || msgs[1].Type != MessageTypeBot || msgs[1].SaveOptions == nil {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestDecodeMessageLog_EmptyIsEmptySequence(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte(""), []byte("  "), []byte("[]")} {
		log := DecodeMessageLog(raw)
		if log.Kind != MessageLogSequence {
			t.Fatalf("%q: expected sequence", raw)
		}
		if got := log.Sequence(); got == nil || len(got) != 0 {
			t.Fatalf("%q: expected empty non-nil slice, got %#v", raw, got)
		}
	}
}

func TestDecodeMessageLog_MalformedCoercedToEmpty(t *testing.T) {
	cases := []string{
		`null`,
		`{"id":"m1"}`,
		`"just text"`,
		`[1,2,3]`,
		`[{"id":`,
	}
	for _, raw := range cases {
		log := DecodeMessageLog([]byte(raw))
		if log.Kind != MessageLogMalformed {
			t.Fatalf("%s: expected malformed", raw)
		}
		if log.Err == nil {
			t.Fatalf("%s: expected an error describing the problem", raw)
		}
		if got := log.Sequence(); got == nil || len(got) != 0 {
			t.Fatalf("%s: expected empty non-nil slice", raw)
		}
	}
}

func TestEncodeMessages_NilIsEmptyArray(t *testing.T) {
	b, err := EncodeMessages(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "[]" {
		t.Fatalf("got %s", b)
	}
}

func TestTrip_ToTripDataDerivesDuration(t *testing.T) {
	trip := &Trip{ID: "t1", StartDate: "2024-03-15", EndDate: "2024-03-22", Destinations: []byte(`["Torre Eiffel"]`)}
	data := trip.ToTripData()
	if data.DurationDays != 7 {
		t.Fatalf("expected 7 days, got %d", data.DurationDays)
	}
	if len(data.Destinations) != 1 || data.Destinations[0] != "Torre Eiffel" {
		t.Fatalf("unexpected destinations %v", data.Destinations)
	}
}

func TestUserProfile_ToUserDataBadPreferences(t *testing.T) {
	p := &UserProfile{UserID: "u1", Preferences: []byte(`[1]`)}
	data := p.ToUserData()
	if data.Preferences == nil || len(data.Preferences) != 0 {
		t.Fatalf("expected empty preferences, got %v", data.Preferences)
	}
}
