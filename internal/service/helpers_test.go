package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"travel-concierge-go/internal/model"
	"travel-concierge-go/internal/repository"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	clock := &stepClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: clock.Now,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&model.Conversation{}, &model.Trip{}, &model.TripLocation{}, &model.UserProfile{}, &model.TripSuggestion{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedTrip(t *testing.T, db *gorm.DB, tripID, userID string) {
	t.Helper()
	trip := model.Trip{
		ID:            tripID,
		UserID:        userID,
		Destination:   "Paris",
		StartDate:     "2024-03-15",
		EndDate:       "2024-03-22",
		DurationDays:  7,
		Destinations:  datatypes.JSON(`["Torre Eiffel"]`),
		BudgetRange:   "R$ 5000-8000",
		TravelerCount: 2,
		Status:        "Confirmada",
	}
	if err := db.Create(&trip).Error; err != nil {
		t.Fatalf("seed trip: %v", err)
	}
}

// fakePointers 是内存版的 SessionRepository。
type fakePointers struct {
	mu      sync.Mutex
	current map[string]string
}

func newFakePointers() *fakePointers {
	return &fakePointers{current: map[string]string{}}
}

func (f *fakePointers) GetCurrentConversationID(_ context.Context, userID, tripID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current[userID+"/"+tripID], nil
}

func (f *fakePointers) SetCurrentConversationID(_ context.Context, userID, tripID, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current[userID+"/"+tripID] = conversationID
	return nil
}

func (f *fakePointers) ClearCurrentConversationID(_ context.Context, userID, tripID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.current, userID+"/"+tripID)
	return nil
}

// fakeRelay 返回预设结果，并记录每次调用的 payload。
type fakeRelay struct {
	mu       sync.Mutex
	payloads []model.ChatPayload
	result   *model.RelayResult
	err      error
	onCall   func(payload model.ChatPayload)
}

func (f *fakeRelay) Relay(_ context.Context, payload model.ChatPayload) (*model.RelayResult, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	onCall := f.onCall
	f.mu.Unlock()
	if onCall != nil {
		onCall(payload)
	}
	return f.result, f.err
}

func (f *fakeRelay) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type fakeSaver struct {
	got   []model.SaveRequest
	token string
	err   error
}

func (f *fakeSaver) Save(_ context.Context, accessToken string, req model.SaveRequest) (map[string]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.token = accessToken
	f.got = append(f.got, req)
	return map[string]interface{}{"code": float64(200), "message": "success"}, nil
}

type fixedSource struct{}

func (fixedSource) Intn(n int) int { return 0 }

type testSession struct {
	db       *gorm.DB
	session  *ChatSession
	store    ConversationStore
	relay    *fakeRelay
	saver    *fakeSaver
	pointers *fakePointers
}

func newTestSession(t *testing.T, relayResult *model.RelayResult, relayErr error) *testSession {
	t.Helper()
	db := newTestDB(t)
	seedTrip(t, db, "t1", "u1")

	pointers := newFakePointers()
	store := NewConversationStore(repository.NewConversationRepository(db), pointers, "t1", "u1")
	relayer := &fakeRelay{result: relayResult, err: relayErr}
	saver := &fakeSaver{}
	session := NewChatSession("u1", "t1", ChatSessionConfig{
		Category:        "restaurant",
		Language:        "pt-BR",
		DefaultTimezone: "America/Sao_Paulo",
	}, ChatSessionDeps{
		Store:  store,
		Trips:  repository.NewTripRepository(db),
		Relay:  relayer,
		Saver:  saver,
		Random: fixedSource{},
		Now:    func() time.Time { return time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC) },
	})
	if err := session.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return &testSession{db: db, session: session, store: store, relay: relayer, saver: saver, pointers: pointers}
}
