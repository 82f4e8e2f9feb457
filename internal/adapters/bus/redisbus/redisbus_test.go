package redisbus

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
)

type sink struct {
	mu     sync.Mutex
	events []core.Event
}

func (s *sink) Deliver(ev core.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *sink) snapshot() []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Event(nil), s.events...)
}

func TestDeliverFillsChannel(t *testing.T) {
	got := &sink{}
	b := &Bus{prefix: "ns:bus:", sink: got}

	b.deliver("ns:bus:private-room-ABCDE", []byte(`{"event":"client-message","data":{"text":"hi"}}`))
	b.deliver("ns:bus:private-room-ABCDE", []byte(`not json`))

	events := got.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "private-room-ABCDE", events[0].Channel)
	assert.Equal(t, core.EventClientMessage, events[0].Name)
}

func TestRoundTrip(t *testing.T) {
	testRoundTrip(t, miniredis.RunT(t).Addr())
}

func TestRoundTripLive(t *testing.T) {
	addr := os.Getenv("ROOMS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ROOMS_TEST_REDIS_ADDR not set")
	}
	testRoundTrip(t, addr)
}

func testRoundTrip(t *testing.T, addr string) {
	got := &sink{}
	ns := "test-" + uuid.NewString()
	sub := New(redis.NewClient(&redis.Options{Addr: addr}), ns, got)
	pub := New(redis.NewClient(&redis.Options{Addr: addr}), ns, nil)
	t.Cleanup(func() {
		_ = sub.Close()
		_ = pub.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	ev, err := core.NewEvent("private-room-ABCDE", core.EventAdminAction, map[string]string{"action": "kick"})
	require.NoError(t, err)
	ev.ExcludeSocket = "s1"

	require.Eventually(t, func() bool {
		_ = pub.Publish(ctx, ev)
		return len(got.snapshot()) > 0
	}, 5*time.Second, 100*time.Millisecond)

	first := got.snapshot()[0]
	assert.Equal(t, ev.Channel, first.Channel)
	assert.Equal(t, core.SocketID("s1"), first.ExcludeSocket)
	assert.JSONEq(t, `{"action":"kick"}`, string(first.Data))
}
