package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"arena-relay/internal/cache"
	"arena-relay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedProfiles parks the first RecordLastSeen call until release is closed.
type gatedProfiles struct {
	Profiles
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedProfiles) RecordLastSeen(ctx context.Context, userID int, at time.Time) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Profiles.RecordLastSeen(ctx, userID, at)
}

type mirrorLog struct {
	mu  sync.Mutex
	ops []string
}

func (m *mirrorLog) SetOnline(_ context.Context, e cache.PresenceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "online:"+e.ConnID)
	return nil
}

func (m *mirrorLog) SetOffline(context.Context, int, time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "offline")
	return nil
}

func (m *mirrorLog) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ops) == 0 {
		return ""
	}
	return m.ops[len(m.ops)-1]
}

func TestReconnectDuringDisconnectCleanup(t *testing.T) {
	var gate *gatedProfiles
	mirror := &mirrorLog{}
	h := newHarness(t, Config{}, func(d *Deps) {
		gate = &gatedProfiles{Profiles: d.Profiles, entered: make(chan struct{}), release: make(chan struct{})}
		d.Profiles = gate
		d.Mirror = mirror
	})

	h.connect(t, bob)
	a, _ := h.connect(t, alice)
	h.emitter.reset()

	profile, err := h.db.GetProfile(context.Background(), alice)
	require.NoError(t, err)
	fresh := &fakeConn{id: "conn-alice-fresh"}

	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		h.router.Disconnect(context.Background(), alice, a.ConnID)
	}()
	<-gate.entered

	connected := make(chan struct{})
	go func() {
		defer close(connected)
		h.router.Connect(context.Background(), fresh, profile)
	}()

	select {
	case <-connected:
		t.Fatal("reconnect must wait for the previous session's cleanup")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate.release)
	<-disconnected
	<-connected

	s, ok := h.presence.Get(alice)
	require.True(t, ok)
	assert.Equal(t, fresh.id, s.ConnID)
	assert.Equal(t, "online:"+fresh.id, mirror.last())

	updates := h.emitter.of(bob, models.EventStatusUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, models.StatusOffline, decodeEnv[models.StatusUpdate](t, updates[0]).Status)
	assert.Equal(t, models.StatusOnline, decodeEnv[models.StatusUpdate](t, updates[1]).Status)
}

func TestUserLocksAreReleased(t *testing.T) {
	h := newHarness(t, Config{})
	a, _ := h.connect(t, alice)
	h.send(t, a, models.EventGetDetails, nil)
	h.router.Disconnect(context.Background(), alice, a.ConnID)

	assert.Equal(t, 0, h.router.users.len())
}
