package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"arena-relay/internal/models"
	"arena-relay/internal/presence"
	"arena-relay/internal/team"
	ws "arena-relay/internal/websocket"
	"arena-relay/pkg/apperror"
	"arena-relay/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// LastSeenSource remembers when users went offline.
type LastSeenSource interface {
	LastSeen(ctx context.Context, userID int) (time.Time, bool, error)
}

type StatusHandlers struct {
	presence *presence.Registry
	teams    *team.Registry
	hub      *ws.Hub
	lastSeen LastSeenSource
	started  time.Time
}

// NewStatusHandlers builds the status routes. lastSeen may be nil.
func NewStatusHandlers(p *presence.Registry, t *team.Registry, hub *ws.Hub, lastSeen LastSeenSource) *StatusHandlers {
	return &StatusHandlers{presence: p, teams: t, hub: hub, lastSeen: lastSeen, started: time.Now()}
}

type HealthResponse struct {
	Status      string `json:"status"`
	Online      int    `json:"online"`
	Teams       int    `json:"teams"`
	Connections int    `json:"connections"`
	Uptime      string `json:"uptime"`
}

func (h *StatusHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Online:      h.presence.Count(),
		Teams:       h.teams.Count(),
		Connections: h.hub.Count(),
		Uptime:      time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Presence reports a user's live session, or status offline with the last
// recorded sighting when there is none.
func (h *StatusHandlers) Presence(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || userID <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorPayload{
			Kind:    string(apperror.KindInvalidInput),
			Message: "invalid user id",
		})
		return
	}

	s, ok := h.presence.Get(userID)
	if !ok {
		offline := models.StatusUpdate{UserID: userID, Status: models.StatusOffline}
		if h.lastSeen != nil {
			seen, found, err := h.lastSeen.LastSeen(r.Context(), userID)
			if err != nil {
				logger.Warn("Could not read last seen of user %d: %v", userID, err)
			} else if found {
				offline.LastSeen = seen
			}
		}
		writeJSON(w, http.StatusOK, offline)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *StatusHandlers) Team(w http.ResponseWriter, r *http.Request) {
	tm, ok := h.teams.Get(chi.URLParam(r, "teamID"))
	if !ok {
		writeError(w, apperror.ErrTeamNotFound)
		return
	}
	writeJSON(w, http.StatusOK, tm)
}
