package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Hangulling/dorandoran-chat/internal/log"
	"github.com/Hangulling/dorandoran-chat/internal/middleware"
	"github.com/Hangulling/dorandoran-chat/internal/registry"
	"github.com/Hangulling/dorandoran-chat/internal/service"
)

var errStreamBufferFull = errors.New("sse stream buffer full")

// sseEvent is one queued server-sent event.
type sseEvent struct {
	name string
	data []byte
}

// sseConn adapts one event-stream response to registry.Conn. Writes are
// queued through a bounded channel; a full buffer is a write failure so a
// stalled consumer gets detached instead of blocking the sender.
type sseConn struct {
	events chan sseEvent
}

func (c *sseConn) WriteEvent(eventType string, data []byte) error {
	select {
	case c.events <- sseEvent{name: eventType, data: data}:
		return nil
	default:
		return errStreamBufferFull
	}
}

// SSEHandler serves the outbound-only push stream per room.
type SSEHandler struct {
	registry  *registry.Registry
	service   service.ChatService
	keepAlive time.Duration
}

func NewSSEHandler(reg *registry.Registry, svc service.ChatService, keepAlive time.Duration) *SSEHandler {
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	return &SSEHandler{
		registry:  reg,
		service:   svc,
		keepAlive: keepAlive,
	}
}

func (h *SSEHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/chat/stream/{roomID}", h.HandleStream)
}

func (h *SSEHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	l := log.Ctx(r.Context())

	roomID, err := uuid.Parse(r.PathValue("roomID"))
	if err != nil {
		http.Error(w, "bad room id", http.StatusBadRequest)
		return
	}

	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(identity.UserID)
	if err != nil {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}

	allowed, err := h.service.HasAccess(r.Context(), userID.String(), roomID.String())
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID.String()).Msg("authorization check failed")
		http.Error(w, "authorization unavailable", http.StatusInternalServerError)
		return
	}
	if !allowed {
		l.Warn().
			Str(log.FieldUserID, userID.String()).
			Str(log.FieldRoomID, roomID.String()).
			Msg("stream refused: access denied")
		http.Error(w, "access denied", http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	conn := &sseConn{events: make(chan sseEvent, 64)}
	handle := h.registry.Attach(roomID.String(), userID.String(), conn)
	defer func() {
		h.registry.Detach(handle)
		l.Info().
			Str(log.FieldUserID, userID.String()).
			Str(log.FieldRoomID, roomID.String()).
			Msg("event stream closed")
	}()

	l.Info().
		Str(log.FieldUserID, userID.String()).
		Str(log.FieldRoomID, roomID.String()).
		Msg("event stream attached")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev := <-conn.events:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
