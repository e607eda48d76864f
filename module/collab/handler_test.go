package collab

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"CProject/middleware/security"
	"CProject/module/collab/service"
	"CProject/module/collab/store"
	sec "CProject/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, authOpts *security.Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemoryStore()
	svc := service.New(service.Options{
		Presence:   mem.Presence(),
		Highlights: mem.Highlights(),
		Logs:       mem.Logs(),
	})
	h := NewHandler(svc, NewHub(1, 16))

	r := gin.New()
	if authOpts == nil {
		authOpts = security.DefaultOptions([]byte("test-secret"))
		authOpts.Enabled = false
	}
	api := r.Group("/api/collaboration", security.Middleware(authOpts))
	h.RegisterRoutes(api)
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPresencePostValidation(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(r, http.MethodPost, "/api/collaboration/presence", map[string]any{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Contains(t, envelope, "error")

	w = doJSON(r, http.MethodPost, "/api/collaboration/presence",
		map[string]any{"userId": "u1", "sceneId": "s1", "action": "teleport"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown action rejected")
}

func TestPresenceRoundTrip(t *testing.T) {
	r := newTestRouter(t, nil)

	// action 缺省按 join
	w := doJSON(r, http.MethodPost, "/api/collaboration/presence",
		map[string]any{"userId": "u1", "sceneId": "s1", "userInfo": map[string]any{"name": "Mahek"}})
	require.Equal(t, http.StatusOK, w.Code)

	var posted struct {
		Success   bool   `json:"success"`
		Action    string `json:"action"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &posted))
	assert.True(t, posted.Success)
	assert.Equal(t, "join", posted.Action)
	assert.NotEmpty(t, posted.Timestamp)

	w = doJSON(r, http.MethodGet, "/api/collaboration/presence?sceneId=s1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Success bool             `json:"success"`
		Users   []map[string]any `json:"users"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Success)
	require.Equal(t, 1, got.Count)
	assert.Equal(t, "u1", got.Users[0]["userId"])

	// leave 后立刻不可见
	w = doJSON(r, http.MethodPost, "/api/collaboration/presence",
		map[string]any{"userId": "u1", "sceneId": "s1", "action": "leave"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/collaboration/presence?sceneId=s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Zero(t, got.Count)
}

func TestPollEnvelope(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(r, http.MethodGet, "/api/collaboration/poll", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "sceneId required")

	doJSON(r, http.MethodPost, "/api/collaboration/presence",
		map[string]any{"userId": "u1", "sceneId": "s1", "action": "join"})

	w = doJSON(r, http.MethodGet, "/api/collaboration/poll?sceneId=s1&lastPoll=x", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		ActiveUsers []map[string]any `json:"activeUsers"`
		Timestamp   string           `json:"timestamp"`
		SceneID     string           `json:"sceneId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "s1", got.SceneID)
	assert.NotEmpty(t, got.Timestamp)
	assert.Len(t, got.ActiveUsers, 1)
}

func TestHighlightEndpoints(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(r, http.MethodPost, "/api/collaboration/highlight",
		map[string]any{"sceneId": "s1", "userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "objectId required")

	w = doJSON(r, http.MethodPost, "/api/collaboration/highlight",
		map[string]any{"sceneId": "s1", "userId": "u1", "userName": "Mahek", "objectId": "obj-1", "action": "select"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/collaboration/highlight?sceneId=s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Highlights []map[string]any `json:"highlights"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Highlights, 1)
	assert.Equal(t, "obj-1", got.Highlights[0]["objectId"])

	// 删除幂等：第二次也是 success
	for i := 0; i < 2; i++ {
		w = doJSON(r, http.MethodDelete, "/api/collaboration/highlight?sceneId=s1&userId=u1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w = doJSON(r, http.MethodGet, "/api/collaboration/highlight?sceneId=s1", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Empty(t, got.Highlights)
}

func TestLogsEndpoints(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(r, http.MethodPost, "/api/collaboration/logs",
		map[string]any{"sceneId": "s1", "userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "action required")

	for _, action := range []string{"object_created", "object_moved", "object_deleted"} {
		w = doJSON(r, http.MethodPost, "/api/collaboration/logs",
			map[string]any{"sceneId": "s1", "userId": "u1", "userName": "Rhythm", "action": action})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = doJSON(r, http.MethodGet, "/api/collaboration/logs?sceneId=s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Logs []map[string]any `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got.Logs, 3)

	// 场景隔离
	w = doJSON(r, http.MethodGet, "/api/collaboration/logs?sceneId=other", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Empty(t, got.Logs)
}

func TestAuthGate(t *testing.T) {
	secret := []byte("gate-secret")
	opts := security.DefaultOptions(secret)
	r := newTestRouter(t, opts)

	w := doJSON(r, http.MethodGet, "/api/collaboration/presence?sceneId=s1", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "no token")

	req := httptest.NewRequest(http.MethodGet, "/api/collaboration/presence?sceneId=s1", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "garbage token")

	token, _, err := sec.Generate(sec.DefaultOptions(secret), "u1", "Mahek")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/collaboration/presence?sceneId=s1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
