package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/cwrk-planet/collab-service/internal/domain"
	"github.com/cwrk-planet/collab-service/internal/room"
	httpmw "github.com/cwrk-planet/collab-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/collab-service/internal/transport/ws"
	"github.com/cwrk-planet/collab-service/pkg/httputil"
	"github.com/cwrk-planet/collab-service/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type RoomInspector interface {
	Rooms() []room.RoomSummary
	Stats() room.Stats
	ListMembers(key string) []domain.UserInfo
}

type Resolver interface {
	Resolve(ctx context.Context, key string) (string, error)
}

type Handler struct {
	rooms    RoomInspector
	resolver Resolver
}

func NewHandler(rooms RoomInspector, resolver Resolver) *Handler {
	return &Handler{rooms: rooms, resolver: resolver}
}

type roomsResponse struct {
	Stats room.Stats         `json:"stats"`
	Rooms []room.RoomSummary `json:"rooms"`
}

type presenceResponse struct {
	Room      string            `json:"room"`
	Users     []domain.UserInfo `json:"users"`
	Anonymous int               `json:"anonymous"`
}

// GET /api/rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, roomsResponse{
		Stats: h.rooms.Stats(),
		Rooms: h.rooms.Rooms(),
	})
}

// GET /api/rooms/{roomKey}/presence
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	key, err := h.resolver.Resolve(r.Context(), chi.URLParam(r, ws.RoomKeyParam))
	if err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			logger.FromCtx(r.Context()).Error("resolve room", "err", err)
		}
		httputil.Error(r.Context(), w, status, http.StatusText(status))
		return
	}

	users := h.rooms.ListMembers(key)
	logger.FromCtx(r.Context()).Debug("presence inspected",
		"room", key, "viewer", httpmw.PrincipalFromCtx(r.Context()).UserID)

	httputil.OK(w, presenceResponse{
		Room:      key,
		Users:     users,
		Anonymous: lo.CountBy(users, func(u domain.UserInfo) bool { return u.IsAnonymous }),
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingRoomKey):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
