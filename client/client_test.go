package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"CProject/module/collab/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// presenceCall 记录一次 /presence 调用，供断言。
type presenceCall struct {
	SceneID string `json:"sceneId"`
	UserID  string `json:"userId"`
	Action  string `json:"action"`
}

type stubServer struct {
	*httptest.Server

	mu        sync.Mutex
	presence  []presenceCall
	pollCount int
	onAction  chan string // 每次 /presence 调用推一个 action
}

func newStubServer(t *testing.T) *stubServer {
	t.Helper()
	s := &stubServer{onAction: make(chan string, 64)}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/collaboration/presence", func(w http.ResponseWriter, r *http.Request) {
		var call presenceCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
		s.mu.Lock()
		s.presence = append(s.presence, call)
		s.mu.Unlock()
		s.onAction <- call.Action
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true, "action": call.Action,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	mux.HandleFunc("/api/collaboration/poll", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.pollCount++
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"activeUsers": []*model.PresenceRecord{{SceneID: r.URL.Query().Get("sceneId"), UserID: "u1"}},
			"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
			"sceneId":     r.URL.Query().Get("sceneId"),
		})
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *stubServer) calls() []presenceCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]presenceCall, len(s.presence))
	copy(out, s.presence)
	return out
}

// waitAction 等到指定 action 出现为止，中途多余的拍直接丢弃。
func waitAction(t *testing.T, s *stubServer, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-s.onAction:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestSessionJoinHeartbeatLeave(t *testing.T) {
	srv := newStubServer(t)
	c := New(srv.URL, "")

	sess := NewSession(c, "s1", "u1", map[string]any{"name": "Mahek"})
	sess.interval = 20 * time.Millisecond // 测试里压短节奏

	require.NoError(t, sess.Start(context.Background()))
	waitAction(t, srv, "join")
	waitAction(t, srv, "heartbeat")
	waitAction(t, srv, "heartbeat")

	sess.Close()
	waitAction(t, srv, "leave")

	calls := srv.calls()
	require.GreaterOrEqual(t, len(calls), 4)
	assert.Equal(t, "join", calls[0].Action)
	assert.Equal(t, "s1", calls[0].SceneID)
	assert.Equal(t, "u1", calls[0].UserID)
}

func TestSessionStartFailsWhenJoinRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "userId and sceneId are required"})
	}))
	defer srv.Close()

	sess := NewSession(New(srv.URL, ""), "s1", "", nil)
	err := sess.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 400")
}

func TestPollerKick(t *testing.T) {
	srv := newStubServer(t)
	c := New(srv.URL, "")

	var mu sync.Mutex
	var updates int
	p := NewPoller(c, "s1", func(users []*model.PresenceRecord) {
		mu.Lock()
		updates++
		mu.Unlock()
		assert.Len(t, users, 1)
	})
	p.interval = time.Hour // 只靠首轮 + Kick 触发

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	waitFor := func(n int) {
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			got := updates
			mu.Unlock()
			if got >= n {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("timed out waiting for %d updates", n)
	}

	waitFor(1) // Run 启动即轮询一次
	p.Kick()
	waitFor(2)
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"logs": []any{}})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-123")
	_, err := c.Logs(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestClientErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "backend unavailable"})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	err := c.SetHighlight(context.Background(), "s1", "u1", "Mahek", "obj-1", "select")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 500")
	assert.Contains(t, err.Error(), "backend unavailable")
}
