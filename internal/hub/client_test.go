package hub

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hangulling/dorandoran-chat/internal/config"
)

var testWSCfg = config.WebSocketConfig{
	PingInterval:   30 * time.Second,
	PongWait:       60 * time.Second,
	WriteWait:      time.Second,
	MaxMessageSize: 4096,
	SendBuffer:     4,
}

// newUpgradedConn returns the server side of a live WebSocket connection.
func newUpgradedConn(t *testing.T) *websocket.Conn {
	t.Helper()

	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	connCh := make(chan *websocket.Conn, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- conn
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	clientSide, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { clientSide.Close() })

	select {
	case conn := <-connCh:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("server side connection not established")
		return nil
	}
}

func TestWriteEventAfterCloseReturnsError(t *testing.T) {
	conn := newUpgradedConn(t)
	c := NewClient(conn, "u1", "r1", testWSCfg)

	c.Close()

	// The dispatcher can hold a registry snapshot referencing this client
	// after it has shut down; a late write must fail cleanly.
	err := c.WriteEvent("new_message", []byte(`{}`))
	if !errors.Is(err, ErrClientClosed) {
		t.Fatalf("WriteEvent after Close = %v, want ErrClientClosed", err)
	}
}

func TestWriteEventFullBufferFails(t *testing.T) {
	conn := newUpgradedConn(t)
	c := NewClient(conn, "u1", "r1", testWSCfg)
	// No WritePump running, so nothing drains the buffer.

	for i := 0; i < testWSCfg.SendBuffer; i++ {
		if err := c.WriteEvent("new_message", []byte(`{}`)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := c.WriteEvent("new_message", []byte(`{}`)); !errors.Is(err, ErrSendBufferFull) {
		t.Fatalf("write past buffer = %v, want ErrSendBufferFull", err)
	}
}

func TestCloseRunsCleanupHookOnce(t *testing.T) {
	conn := newUpgradedConn(t)
	c := NewClient(conn, "u1", "r1", testWSCfg)

	calls := 0
	c.OnClose(func() { calls++ })

	c.Close()
	c.Close()

	if calls != 1 {
		t.Fatalf("cleanup hook ran %d times, want 1", calls)
	}
}

func TestWritePumpStopsOnClose(t *testing.T) {
	conn := newUpgradedConn(t)
	c := NewClient(conn, "u1", "r1", testWSCfg)

	pumpDone := make(chan struct{})
	go func() {
		c.WritePump()
		close(pumpDone)
	}()

	c.Close()

	select {
	case <-pumpDone:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump did not stop after Close")
	}
}
