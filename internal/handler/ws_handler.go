package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Hangulling/dorandoran-chat/internal/config"
	"github.com/Hangulling/dorandoran-chat/internal/hub"
	"github.com/Hangulling/dorandoran-chat/internal/log"
	"github.com/Hangulling/dorandoran-chat/internal/middleware"
	"github.com/Hangulling/dorandoran-chat/internal/registry"
	"github.com/Hangulling/dorandoran-chat/internal/service"
)

// Inbound frame format: senderId|senderType|content. Splitting stops after
// the second delimiter so content may contain '|'.
const (
	frameDelimiter = "|"
	frameParts     = 3
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler terminates bidirectional chat connections.
type WSHandler struct {
	registry *registry.Registry
	service  service.ChatService
	wsCfg    config.WebSocketConfig
}

func NewWSHandler(reg *registry.Registry, svc service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		registry: reg,
		service:  svc,
		wsCfg:    wsCfg,
	}
}

func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/chat/{roomID}", h.HandleWebSocket)
}

// HandleWebSocket drives the connection state machine: validate and
// authorize during Connecting, then attach and pump frames while Open. Every
// terminal condition funnels into the client's single close hook, which
// detaches the registry handle.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	l := log.Ctx(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	roomID, err := uuid.Parse(r.PathValue("roomID"))
	if err != nil {
		l.Warn().Str(log.FieldRoomID, r.PathValue("roomID")).Msg("connection refused: bad room id")
		closeWith(conn, websocket.CloseInvalidFramePayloadData, "bad request")
		return
	}

	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		l.Warn().Msg("connection refused: no verified identity")
		closeWith(conn, websocket.CloseInvalidFramePayloadData, "bad request")
		return
	}
	userID, err := uuid.Parse(identity.UserID)
	if err != nil {
		l.Warn().Str(log.FieldUserID, identity.UserID).Msg("connection refused: bad user id")
		closeWith(conn, websocket.CloseInvalidFramePayloadData, "bad request")
		return
	}

	allowed, err := h.service.HasAccess(r.Context(), userID.String(), roomID.String())
	if err != nil {
		l.Error().Err(err).
			Str(log.FieldUserID, userID.String()).
			Str(log.FieldRoomID, roomID.String()).
			Msg("authorization check failed")
		closeWith(conn, websocket.CloseInternalServerErr, "authorization unavailable")
		return
	}
	if !allowed {
		l.Warn().
			Str(log.FieldUserID, userID.String()).
			Str(log.FieldRoomID, roomID.String()).
			Msg("connection refused: access denied")
		closeWith(conn, websocket.CloseUnsupportedData, "access denied")
		return
	}

	client := hub.NewClient(conn, userID.String(), roomID.String(), h.wsCfg)
	handle := h.registry.Attach(roomID.String(), userID.String(), client)
	client.OnClose(func() {
		h.registry.Detach(handle)
		l.Info().
			Str(log.FieldUserID, userID.String()).
			Str(log.FieldRoomID, roomID.String()).
			Msg("websocket connection closed")
	})

	l.Info().
		Str(log.FieldUserID, userID.String()).
		Str(log.FieldRoomID, roomID.String()).
		Msg("websocket connection established")

	go client.WritePump()
	go client.ReadPump(func(frame []byte) {
		h.handleFrame(client, frame)
	})
}

// handleFrame processes one inbound frame. Every rejection leaves the
// connection open; only transport errors close it.
func (h *WSHandler) handleFrame(client *hub.Client, frame []byte) {
	l := log.L().With().
		Str(log.FieldUserID, client.UserID).
		Str(log.FieldRoomID, client.RoomID).
		Logger()

	parts := strings.SplitN(string(frame), frameDelimiter, frameParts)
	if len(parts) < frameParts {
		l.Warn().Int("parts", len(parts)).Msg("dropping malformed frame")
		return
	}

	senderID, err := uuid.Parse(parts[0])
	if err != nil {
		l.Warn().Str(log.FieldSenderID, parts[0]).Msg("dropping frame with invalid sender id")
		return
	}
	senderType := parts[1]
	content := parts[2]

	// Anti-spoofing: the claimed sender must be the connection's own
	// authenticated user, and clients may only speak as "user".
	if senderID.String() != client.UserID || senderType != "user" {
		l.Warn().
			Str(log.FieldLogType, log.LogTypeSecurity).
			Str(log.FieldSenderID, senderID.String()).
			Str("sender_type", senderType).
			Msg("dropping spoofed frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.service.SendUserMessage(ctx, client.RoomID, client.UserID, content); err != nil {
		l.Error().Err(err).Msg("failed to process chat message")
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}
