package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-irc/internal/core"
	"github.com/vovakirdan/wirechat-irc/internal/session"
)

type fakeSource struct {
	store *core.RoomStore
}

func (f *fakeSource) State() session.State { return session.StateReady }
func (f *fakeSource) Identity() string     { return "alice" }
func (f *fakeSource) Rooms() []*core.Room  { return f.store.Rooms() }
func (f *fakeSource) Room(name string) (*core.Room, bool) {
	return f.store.Get(name)
}

func newTestRouter(t *testing.T) (http.Handler, *core.RoomStore) {
	t.Helper()
	store := core.NewRoomStore(core.StoreOptions{}, "lobby")
	disabledLogger := zerolog.New(nil)
	return NewRouter(&fakeSource{store: store}, &disabledLogger), store
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", resp.Code, resp.Body.String())
	}
}

func TestStatus(t *testing.T) {
	router, store := newTestRouter(t)
	room, _ := store.Get("lobby")
	room.UpsertUser("bob", core.Profile{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var status StatusResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.State != "ready" || status.Identity != "alice" {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Rooms) != 1 || status.Rooms[0].Name != "#lobby" || status.Rooms[0].Users != 1 {
		t.Fatalf("unexpected rooms %+v", status.Rooms)
	}
}

func TestListMessages(t *testing.T) {
	router, store := newTestRouter(t)
	room, _ := store.Get("lobby")
	bob, _ := room.UpsertUser("bob", core.Profile{DisplayName: "Bob"})
	room.Cache().Add(&core.Message{ID: "m1", Room: room.Name, Author: bob, Content: "hi", CreatedAt: time.Now()})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/rooms/lobby/messages", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var msgs []MessageResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" || msgs[0].Author != "Bob" {
		t.Fatalf("unexpected messages %+v", msgs)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/rooms/nowhere/messages", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown room, got %d", resp.Code)
	}
}
