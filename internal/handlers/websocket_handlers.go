package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"arena-relay/internal/auth"
	"arena-relay/internal/models"
	"arena-relay/internal/relay"
	ws "arena-relay/internal/websocket"
	"arena-relay/pkg/apperror"
	"arena-relay/pkg/logger"

	"github.com/gorilla/websocket"
)

// Resolver turns a bearer token into an authenticated profile.
type Resolver interface {
	Resolve(ctx context.Context, token string) (auth.Identity, *models.Profile, error)
}

type WebSocketHandlers struct {
	auth     Resolver
	hub      *ws.Hub
	router   *relay.Router
	upgrader websocket.Upgrader
}

func NewWebSocketHandlers(resolver Resolver, hub *ws.Hub, router *relay.Router, allowedOrigins []string) *WebSocketHandlers {
	return &WebSocketHandlers{
		auth:   resolver,
		hub:    hub,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker allows requests without an Origin header (non-browser
// clients) and browser requests whose origin host is listed. "*" allows all.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	hosts := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "*" {
			return func(*http.Request) bool { return true }
		}
		if u, err := url.Parse(a); err == nil && u.Host != "" {
			a = u.Host
		}
		hosts[strings.ToLower(a)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return hosts[strings.ToLower(u.Host)]
	}
}

func tokenFrom(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, err := auth.BearerToken(h)
		if err != nil {
			return "", apperror.Unauthenticated(err.Error())
		}
		return token, nil
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	return "", apperror.ErrMissingToken
}

func statusFor(err error) int {
	switch apperror.KindOf(err) {
	case apperror.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperror.KindInvalidInput:
		return http.StatusBadRequest
	case apperror.KindBanned:
		return http.StatusForbidden
	case apperror.KindNotFound, apperror.KindTeamNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), models.ErrorPayload{
		Kind:    string(apperror.KindOf(err)),
		Message: apperror.PublicMessage(err),
	})
}

// HandleWebSocket authenticates before upgrading, so a rejected client never
// gets a session.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token, err := tokenFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	identity, profile, err := h.auth.Resolve(r.Context(), token)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			logger.Error("Error resolving identity: %v", err)
		}
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, h.router, identity.UserID, identity.ExpiresAt)
	h.hub.Register(client)
	go client.WritePump()

	// The request context ends when this handler returns.
	ctx := context.Background()
	out := h.router.Connect(ctx, client, profile)
	if out.Reply != nil {
		if data, err := json.Marshal(out.Reply); err == nil {
			client.Send(data)
		}
	}
	go client.ReadPump(ctx)
}
