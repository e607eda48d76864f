package collab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSubject(t *testing.T) {
	assert.Equal(t, "collab.presence.s1", EventSubject("presence", "s1"))
	// 场景ID里的点和通配符不能漏进主题层级
	assert.Equal(t, "collab.highlight.room_2_a", EventSubject("highlight", "room.2 a"))
	assert.Equal(t, "collab.log.x_", EventSubject("log", "x>"))
}

func recvPayload(t *testing.T, c *StreamClient) []byte {
	t.Helper()
	select {
	case p := <-c.send:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no payload delivered")
		return nil
	}
}

func TestHubDeliverSceneScoped(t *testing.T) {
	h := NewHub(1, 16)

	a := &StreamClient{send: make(chan []byte, 4)}
	b := &StreamClient{send: make(chan []byte, 4)}
	h.register("s1", a)
	h.register("s2", b)

	h.Deliver("s1", []byte("ev-1"))
	assert.Equal(t, "ev-1", string(recvPayload(t, a)))
	select {
	case p := <-b.send:
		t.Fatalf("wrong-scene client got %q", p)
	case <-time.After(50 * time.Millisecond):
	}

	// 清洗过的形态和原始ID落同一个桶
	c := &StreamClient{send: make(chan []byte, 4)}
	h.register("room.2", c)
	h.Deliver("room_2", []byte("ev-2"))
	assert.Equal(t, "ev-2", string(recvPayload(t, c)))
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	h := NewHub(1, 16)
	a := &StreamClient{send: make(chan []byte, 4)}
	h.register("s1", a)
	h.unregister("s1", a)

	h.Deliver("s1", []byte("ev"))
	select {
	case p := <-a.send:
		t.Fatalf("unregistered client got %q", p)
	case <-time.After(50 * time.Millisecond):
	}
	// 再退一次也安全
	require.NotPanics(t, func() { h.unregister("s1", a) })
}

func TestHubSkipsSlowClient(t *testing.T) {
	h := NewHub(1, 16)
	slow := &StreamClient{send: make(chan []byte)} // 无缓冲且无人读
	ok := &StreamClient{send: make(chan []byte, 4)}
	h.register("s1", slow)
	h.register("s1", ok)

	h.Deliver("s1", []byte("ev"))
	assert.Equal(t, "ev", string(recvPayload(t, ok)), "slow client must not block fanout")
}
