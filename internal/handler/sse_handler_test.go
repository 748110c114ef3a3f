package handler

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Hangulling/dorandoran-chat/internal/jwt"
	"github.com/Hangulling/dorandoran-chat/internal/middleware"
	"github.com/Hangulling/dorandoran-chat/internal/pubsub"
	"github.com/Hangulling/dorandoran-chat/internal/registry"
	"github.com/Hangulling/dorandoran-chat/internal/service"
)

type sseFixture struct {
	server   *httptest.Server
	registry *registry.Registry
	manager  *jwt.Manager
}

func newSSEFixture(t *testing.T) *sseFixture {
	t.Helper()

	st := &fakeStore{members: map[string]bool{userU1 + ":" + roomR1: true}}
	reg := registry.New()
	svc := service.NewChatService(st, pubsub.NewPublisher(&captureBus{}), nil, service.Options{})

	manager := jwt.NewManager("test-secret", "dorandoran", time.Minute)

	mux := http.NewServeMux()
	NewSSEHandler(reg, svc, 50*time.Millisecond).RegisterRoutes(mux)

	server := httptest.NewServer(middleware.RequireAuth(manager)(mux))
	t.Cleanup(server.Close)

	return &sseFixture{server: server, registry: reg, manager: manager}
}

func (f *sseFixture) open(t *testing.T, userID, roomID string) *http.Response {
	t.Helper()
	token, err := f.manager.Generate(userID, "tester")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// SSE clients cannot set headers from EventSource, so the token rides
	// the query string.
	url := f.server.URL + "/api/chat/stream/" + roomID + "?token=" + token
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStreamDeliversRegistryEvents(t *testing.T) {
	f := newSSEFixture(t)
	resp := f.open(t, userU1, roomR1)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	waitUntil(t, func() bool { return f.registry.RoomCount(roomR1) == 1 })

	if n := f.registry.Send(roomR1, "new_message", []byte(`{"content":"hi"}`)); n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && dataLine == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimPrefix(line, "data: ")
		}
	}

	if eventLine != "new_message" {
		t.Errorf("event = %q, want %q", eventLine, "new_message")
	}
	if dataLine != `{"content":"hi"}` {
		t.Errorf("data = %q", dataLine)
	}
}

func TestStreamDetachesOnClientDisconnect(t *testing.T) {
	f := newSSEFixture(t)
	resp := f.open(t, userU1, roomR1)

	waitUntil(t, func() bool { return f.registry.RoomCount(roomR1) == 1 })

	resp.Body.Close()
	waitUntil(t, func() bool { return f.registry.RoomCount(roomR1) == 0 })
}

func TestStreamRefusedForNonMember(t *testing.T) {
	f := newSSEFixture(t)
	resp := f.open(t, userU2, roomR1)

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
	if f.registry.RoomCount(roomR1) != 0 {
		t.Error("refused stream must not be attached")
	}
}

func TestStreamRefusedForBadRoomID(t *testing.T) {
	f := newSSEFixture(t)
	resp := f.open(t, userU1, "not-a-uuid")

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
