// Package relay routes inbound websocket events to the presence, team and chat
// components and computes who has to hear about the result.
//
// Handlers return their reply and fan-out as data; nothing in a handler writes
// to a connection. The gateway sends the reply to the caller and hands the
// notifications to Deliver.
package relay

import (
	"context"
	"time"

	"arena-relay/internal/cache"
	"arena-relay/internal/chat"
	"arena-relay/internal/events"
	"arena-relay/internal/models"
	"arena-relay/internal/presence"
	"arena-relay/internal/team"
	"arena-relay/pkg/apperror"
	"arena-relay/pkg/logger"

	mapset "github.com/deckarep/golang-set/v2"
)

// Caller identifies the connection an event arrived on.
type Caller struct {
	UserID    int
	ConnID    string
	ExpiresAt time.Time
}

// Expired reports whether the caller's credentials have lapsed. A zero
// ExpiresAt never expires.
func (c Caller) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Notification is one envelope addressed to a set of users.
type Notification struct {
	UserIDs  []int
	Envelope models.Envelope
}

// Outcome is everything a handled event produces.
type Outcome struct {
	Reply  *models.Envelope
	Notify []Notification
	Close  bool
}

func (o *Outcome) notify(userIDs []int, env models.Envelope) {
	if len(userIDs) == 0 {
		return
	}
	o.Notify = append(o.Notify, Notification{UserIDs: userIDs, Envelope: env})
}

func (o *Outcome) merge(other Outcome) {
	o.Notify = append(o.Notify, other.Notify...)
}

// Emitter pushes an envelope to a user's live connection without blocking.
// It reports false when the user has no connection or its buffer is full.
type Emitter interface {
	Emit(userID int, env models.Envelope) bool
}

// Profiles is the user-profile store as the router sees it.
type Profiles interface {
	Profile(ctx context.Context, userID int) (*models.Profile, error)
	FriendIDs(ctx context.Context, userID int) (mapset.Set[int], error)
	IsBanned(ctx context.Context, userID int) (bool, error)
	RecordLastSeen(ctx context.Context, userID int, at time.Time) error
}

type Config struct {
	PurgePrivateOnLogout bool
	// MirrorTimeout bounds each presence-mirror call.
	MirrorTimeout time.Duration
}

type Deps struct {
	Presence  *presence.Registry
	Teams     *team.Registry
	Store     *chat.Store
	Profiles  Profiles
	Emitter   Emitter
	Publisher events.Publisher
	Mirror    cache.PresenceMirror
}

type handlerFunc func(ctx context.Context, c Caller, env models.Envelope) (Outcome, error)

type Router struct {
	presence  *presence.Registry
	teams     *team.Registry
	store     *chat.Store
	profiles  Profiles
	emitter   Emitter
	publisher events.Publisher
	mirror    cache.PresenceMirror
	cfg       Config
	now       func() time.Time

	// users serializes connect, dispatch and disconnect per user id.
	users    *userLocks
	handlers map[models.EventType]handlerFunc
}

func NewRouter(deps Deps, cfg Config) *Router {
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = 2 * time.Second
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Mirror == nil {
		deps.Mirror = cache.NopPresenceMirror{}
	}

	r := &Router{
		presence:  deps.Presence,
		teams:     deps.Teams,
		store:     deps.Store,
		profiles:  deps.Profiles,
		emitter:   deps.Emitter,
		publisher: deps.Publisher,
		mirror:    deps.Mirror,
		cfg:       cfg,
		now:       time.Now,
		users:     newUserLocks(),
	}
	r.handlers = map[models.EventType]handlerFunc{
		models.EventGetDetails:   r.handleGetDetails,
		models.EventUpdateStatus: r.handleUpdateStatus,
		models.EventUserLogout:   r.handleLogout,
		models.EventTeamCreate:   r.handleTeamCreate,
		models.EventTeamInvite:   r.handleTeamInvite,
		models.EventTeamAccept:   r.handleTeamAccept,
		models.EventTeamLeave:    r.handleTeamLeave,
		models.EventTeamDisband:  r.handleTeamDisband,
		models.EventTeamKick:     r.handleTeamKick,
		models.EventTeamSetReady: r.handleTeamSetReady,
		models.EventChatSend:     r.handleChatSend,
		models.EventChatHistory:  r.handleChatHistory,
		models.EventChatMarkRead: r.handleChatMarkRead,
	}
	return r
}

// SetEmitter installs the gateway once it exists.
func (r *Router) SetEmitter(e Emitter) {
	r.emitter = e
}

// SetClock overrides the time source, for tests.
func (r *Router) SetClock(now func() time.Time) {
	r.now = now
}

// Touch records liveness for the connection, e.g. on a pong. It reports
// false once connID no longer owns the user's session.
func (r *Router) Touch(userID int, connID string) bool {
	return r.presence.Touch(userID, connID)
}

// Dispatch handles one inbound envelope. Errors never escape: they become an
// error reply, and fatal ones also ask the gateway to close the connection.
func (r *Router) Dispatch(ctx context.Context, c Caller, env models.Envelope) Outcome {
	defer r.users.lock(c.UserID)()

	if c.Expired(r.now()) {
		return r.fail(c, env, apperror.Unauthenticated("credentials expired"))
	}
	if !r.presence.Touch(c.UserID, c.ConnID) {
		return r.fail(c, env, apperror.Unauthenticated("session is no longer active"))
	}

	h, ok := r.handlers[env.Type]
	if !ok {
		return r.fail(c, env, apperror.Newf(apperror.KindUnknownEvent, "unknown event %q", env.Type))
	}

	out, err := h(ctx, c, env)
	if err != nil {
		return r.fail(c, env, err)
	}
	if out.Reply != nil {
		out.Reply.RequestID = env.RequestID
	}
	return out
}

func (r *Router) fail(c Caller, env models.Envelope, err error) Outcome {
	if !apperror.IsDomain(err) {
		logger.Error("Event %s from user %d failed: %v", env.Type, c.UserID, err)
	} else {
		logger.Debug("Event %s from user %d rejected: %v", env.Type, c.UserID, err)
	}
	reply := ErrorEnvelope(err)
	reply.RequestID = env.RequestID
	return Outcome{Reply: &reply, Close: apperror.IsFatal(err)}
}

// ErrorEnvelope renders err for the client.
func ErrorEnvelope(err error) models.Envelope {
	env, _ := models.NewEnvelope(models.EventError, models.ErrorPayload{
		Kind:    string(apperror.KindOf(err)),
		Message: apperror.PublicMessage(err),
	})
	return env
}

// Deliver pushes notifications to whoever is still connected. Offline
// recipients and full buffers are skipped.
func (r *Router) Deliver(notes []Notification) {
	if r.emitter == nil {
		return
	}
	for _, n := range notes {
		for _, id := range n.UserIDs {
			if !r.emitter.Emit(id, n.Envelope) {
				logger.Debug("Dropped %s for user %d", n.Envelope.Type, id)
			}
		}
	}
}

func reply(t models.EventType, data any) (*models.Envelope, error) {
	env, err := models.NewEnvelope(t, data)
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func mustEnvelope(t models.EventType, data any) models.Envelope {
	env, err := models.NewEnvelope(t, data)
	if err != nil {
		logger.Error("Failed to encode %s: %v", t, err)
	}
	return env
}

func decode(env models.Envelope, v any) error {
	if err := env.Decode(v); err != nil {
		return apperror.Wrap(apperror.KindInvalidInput, "malformed "+string(env.Type)+" payload", err)
	}
	return nil
}

func (r *Router) publish(ctx context.Context, t events.Type, tm *models.Team, userID int) {
	if err := r.publisher.Publish(ctx, events.NewTeamEvent(t, tm, userID)); err != nil {
		logger.Warn("Failed to publish %s for team %s: %v", t, tm.ID, err)
	}
}

func (r *Router) session(userID int) (presence.Session, error) {
	s, ok := r.presence.Get(userID)
	if !ok {
		return presence.Session{}, apperror.ErrSessionNotFound
	}
	return s, nil
}

func without(ids []int, exclude int) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}
