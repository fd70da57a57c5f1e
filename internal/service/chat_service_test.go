package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"travel-concierge-go/internal/model"
	"travel-concierge-go/pkg/relay"
)

func TestChatSession_UserMessageAppendedBeforeRelay(t *testing.T) {
	ts := newTestSession(t, &model.RelayResult{Success: true, Message: "Experimente o Le Marais"}, nil)

	var seen []model.Message
	ts.relay.onCall = func(model.ChatPayload) {
		seen = ts.session.Messages()
	}

	if err := ts.session.SendMessage(context.Background(), "  Onde comer?  "); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(seen) != 1 || seen[0].Type != model.MessageTypeUser || seen[0].Content != "Onde comer?" {
		t.Fatalf("expected exactly one user message before relay, got %+v", seen)
	}

	msgs := ts.session.Messages()
	if len(msgs) != 2 || msgs[1].Type != model.MessageTypeBot || msgs[1].Content != "Experimente o Le Marais" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if msgs[0].ID == "" || msgs[0].ID == msgs[1].ID {
		t.Fatalf("message ids must be unique: %q %q", msgs[0].ID, msgs[1].ID)
	}
}

func TestChatSession_BlankInputIsNoop(t *testing.T) {
	ts := newTestSession(t, &model.RelayResult{Success: true}, nil)

	for _, in := range []string{"", "   ", "\n\t"} {
		if err := ts.session.SendMessage(context.Background(), in); err != nil {
			t.Fatalf("send %q: %v", in, err)
		}
	}
	if n := len(ts.session.Messages()); n != 0 {
		t.Fatalf("expected no messages, got %d", n)
	}
	if ts.relay.calls() != 0 {
		t.Fatalf("expected no relay calls, got %d", ts.relay.calls())
	}
	if n := len(ts.store.List(context.Background())); n != 0 {
		t.Fatalf("expected no conversation to be created, got %d", n)
	}
}

func TestChatSession_SendingResetOnEveryOutcome(t *testing.T) {
	cases := []struct {
		name   string
		result *model.RelayResult
		err    error
		want   model.MessageType
	}{
		{"success", &model.RelayResult{Success: true, Message: "ok"}, nil, model.MessageTypeBot},
		{"structured failure", &model.RelayResult{Success: false, Error: "webhook request failed with status 502: bad gateway"}, nil, model.MessageTypeSystem},
		{"communication error", nil, fmt.Errorf("%w: connection refused", relay.ErrCommunication), model.MessageTypeSystem},
		{"empty result", nil, nil, model.MessageTypeSystem},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestSession(t, tc.result, tc.err)

			var during SessionState
			ts.relay.onCall = func(model.ChatPayload) { during = ts.session.State() }

			if err := ts.session.SendMessage(context.Background(), "Onde comer?"); err != nil {
				t.Fatalf("send: %v", err)
			}
			if !during.Sending || during.ProcessingMessage == "" {
				t.Fatalf("expected sending state during relay, got %+v", during)
			}
			state := ts.session.State()
			if state.Sending || state.ProcessingMessage != "" {
				t.Fatalf("sending state not reset: %+v", state)
			}
			msgs := ts.session.Messages()
			if len(msgs) != 2 || msgs[1].Type != tc.want {
				t.Fatalf("unexpected messages %+v", msgs)
			}
		})
	}
}

func TestChatSession_FailureMessagesCarryGlyph(t *testing.T) {
	ts := newTestSession(t, &model.RelayResult{Success: false, Error: "webhook request failed with status 502: bad gateway"}, nil)
	if err := ts.session.SendMessage(context.Background(), "Oi"); err != nil {
		t.Fatal(err)
	}
	reply := ts.session.Messages()[1]
	if !strings.HasPrefix(reply.Content, "❌ ") || !strings.Contains(reply.Content, "502") {
		t.Fatalf("unexpected reply %q", reply.Content)
	}

	ts = newTestSession(t, nil, fmt.Errorf("%w: timeout", relay.ErrCommunication))
	if err := ts.session.SendMessage(context.Background(), "Oi"); err != nil {
		t.Fatal(err)
	}
	reply = ts.session.Messages()[1]
	if !strings.HasPrefix(reply.Content, "❌ Erro de comunicação: ") {
		t.Fatalf("unexpected reply %q", reply.Content)
	}
}

func TestChatSession_FirstMessageCreatesAndPersistsConversation(t *testing.T) {
	ts := newTestSession(t, &model.RelayResult{Success: true, Message: "Bistrô"}, nil)
	ctx := context.Background()

	if err := ts.session.SendMessage(ctx, "Onde comer?"); err != nil {
		t.Fatal(err)
	}
	convID := ts.session.State().ConversationID
	if convID == "" {
		t.Fatal("expected a conversation to be created")
	}
	if got, _ := ts.pointers.GetCurrentConversationID(ctx, "u1", "t1"); got != convID {
		t.Fatalf("current pointer = %q, want %q", got, convID)
	}

	loaded := ts.store.Load(ctx, convID)
	if loaded == nil {
		t.Fatal("conversation not found")
	}
	if loaded.Title != "Onde comer?" {
		t.Fatalf("unexpected title %q", loaded.Title)
	}
	if len(loaded.Messages) != 2 || loaded.Messages[1].Content != "Bistrô" {
		t.Fatalf("unexpected persisted messages %+v", loaded.Messages)
	}

	payload := ts.relay.payloads[0]
	if payload.RequestData.ConversationID != convID || payload.TripData.TripID != "t1" || payload.UserData.UserID != "u1" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.RequestData.Category != "restaurant" || payload.RequestData.Language != "pt-BR" {
		t.Fatalf("unexpected request data %+v", payload.RequestData)
	}
}

func TestChatSession_RejectsConcurrentSend(t *testing.T) {
	ts := newTestSession(t, &model.RelayResult{Success: true, Message: "ok"}, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	ts.relay.onCall = func(model.ChatPayload) {
		close(started)
		<-release
	}

	done := make(chan error, 1)
	go func() { done <- ts.session.SendMessage(context.Background(), "primeira") }()
	<-started

	if err := ts.session.SendMessage(context.Background(), "segunda"); !errors.Is(err, ErrSendInProgress) {
		t.Fatalf("expected ErrSendInProgress, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}
	if n := len(ts.session.Messages()); n != 2 {
		t.Fatalf("expected 2 messages, got %d", n)
	}
}

func TestChatSession_DropsReplyAfterConversationSwitch(t *testing.T) {
	ts := newTestSession(t, &model.RelayResult{Success: true, Message: "tarde demais"}, nil)
	ctx := context.Background()

	other := ts.store.Create(ctx, "Outra conversa")
	if other == nil {
		t.Fatal("create other conversation")
	}

	started := make(chan struct{})
	release := make(chan struct{})
	ts.relay.onCall = func(model.ChatPayload) {
		close(started)
		<-release
	}

	done := make(chan error, 1)
	go func() { done <- ts.session.SendMessage(ctx, "Onde comer?") }()
	<-started

	if _, err := ts.session.SelectConversation(ctx, other.ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}

	if msgs := ts.session.Messages(); len(msgs) != 0 {
		t.Fatalf("late reply leaked into the selected conversation: %+v", msgs)
	}
	state := ts.session.State()
	if state.ConversationID != other.ID || state.Sending {
		t.Fatalf("unexpected state %+v", state)
	}
}

type recordingListener struct {
	messages []model.Message
	states   []SessionState
}

func (l *recordingListener) OnMessage(_ string, m model.Message) { l.messages = append(l.messages, m) }
func (l *recordingListener) OnStatus(s SessionState)            { l.states = append(l.states, s) }

func TestChatSession_NotifiesListener(t *testing.T) {
	ts := newTestSession(t, &model.RelayResult{Success: true, Message: "ok"}, nil)
	l := &recordingListener{}
	ts.session.SetListener(l)

	if err := ts.session.SendMessage(context.Background(), "Oi"); err != nil {
		t.Fatal(err)
	}
	if len(l.messages) != 2 {
		t.Fatalf("expected 2 message events, got %d", len(l.messages))
	}
	if len(l.states) < 2 || !l.states[0].Sending || l.states[len(l.states)-1].Sending {
		t.Fatalf("unexpected status events %+v", l.states)
	}
}

func TestChatSession_SaveToTrip(t *testing.T) {
	ts := newTestSession(t, nil, nil)
	ctx := context.Background()

	var saved []model.SaveRequest
	opts := &model.SaveOptions{Data: json.RawMessage(`{"name":"Le Marais"}`)}
	res, err := ts.session.SaveToTrip(ctx, "user-token", opts, func(r model.SaveRequest) { saved = append(saved, r) })
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res["message"] != "success" {
		t.Fatalf("unexpected response %v", res)
	}
	if len(saved) != 1 || len(ts.saver.got) != 1 {
		t.Fatalf("expected one save, got %d/%d", len(saved), len(ts.saver.got))
	}
	req := ts.saver.got[0]
	if req.UserID != "u1" || req.TripID != "t1" || req.Category != "restaurant" || string(req.Content) != `{"name":"Le Marais"}` {
		t.Fatalf("unexpected save request %+v", req)
	}
	if _, err := time.Parse(time.RFC3339, req.SavedAt); err != nil {
		t.Fatalf("saved_at is not ISO-8601: %q", req.SavedAt)
	}
	if ts.saver.token != "user-token" {
		t.Fatalf("token not forwarded: %q", ts.saver.token)
	}

	if _, err := ts.session.SaveToTrip(ctx, "user-token", nil, nil); !errors.Is(err, ErrInvalidSaveOptions) {
		t.Fatalf("expected ErrInvalidSaveOptions, got %v", err)
	}

	ts.saver.err = errors.New("save endpoint returned status 403: forbidden")
	saved = nil
	if _, err := ts.session.SaveToTrip(ctx, "user-token", opts, func(r model.SaveRequest) { saved = append(saved, r) }); err == nil {
		t.Fatal("expected save error")
	}
	if len(saved) != 0 {
		t.Fatal("onSaved must not run when the save fails")
	}
}

func TestChatSession_DeleteActiveConversationClearsMessages(t *testing.T) {
	ts := newTestSession(t, &model.RelayResult{Success: true, Message: "ok"}, nil)
	ctx := context.Background()

	if err := ts.session.SendMessage(ctx, "Oi"); err != nil {
		t.Fatal(err)
	}
	convID := ts.session.State().ConversationID
	if err := ts.session.DeleteConversation(ctx, convID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(ts.session.Messages()) != 0 || ts.session.State().ConversationID != "" {
		t.Fatalf("active conversation not cleared: %+v", ts.session.State())
	}
	if got, _ := ts.pointers.GetCurrentConversationID(ctx, "u1", "t1"); got != "" {
		t.Fatalf("current pointer not cleared: %q", got)
	}
}

func TestTitleFromMessage(t *testing.T) {
	if got := titleFromMessage("  Onde   comer?  "); got != "Onde comer?" {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("á", 60)
	got := titleFromMessage(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != 53 {
		t.Fatalf("unexpected truncated title %q", got)
	}
}
