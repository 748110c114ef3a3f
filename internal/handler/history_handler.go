package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/Hangulling/dorandoran-chat/internal/log"
	"github.com/Hangulling/dorandoran-chat/internal/middleware"
	"github.com/Hangulling/dorandoran-chat/internal/service"
)

// HistoryHandler serves recent room messages so a client attaching mid
// conversation can backfill before live events arrive.
type HistoryHandler struct {
	service service.ChatService
}

func NewHistoryHandler(svc service.ChatService) *HistoryHandler {
	return &HistoryHandler{service: svc}
}

func (h *HistoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/chat/rooms/{roomID}/messages", h.HandleRecent)
}

type messageResponse struct {
	MessageID   string `json:"message_id"`
	RoomID      string `json:"room_id"`
	SenderID    string `json:"sender_id"`
	SenderType  string `json:"sender_type"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	Sequence    int64  `json:"sequence_number"`
	CreatedAt   int64  `json:"created_at"`
}

func (h *HistoryHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
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

	allowed, err := h.service.HasAccess(r.Context(), identity.UserID, roomID.String())
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID.String()).Msg("authorization check failed")
		http.Error(w, "authorization unavailable", http.StatusInternalServerError)
		return
	}
	if !allowed {
		http.Error(w, "access denied", http.StatusForbidden)
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	records, err := h.service.RecentMessages(r.Context(), roomID.String(), limit)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID.String()).Msg("failed to load messages")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]messageResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, messageResponse{
			MessageID:   rec.ID,
			RoomID:      rec.RoomID,
			SenderID:    rec.SenderID,
			SenderType:  rec.SenderType,
			Content:     rec.Content,
			ContentType: rec.ContentType,
			Sequence:    rec.Sequence,
			CreatedAt:   rec.CreatedAt.UnixMilli(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
