package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"CProject/module/collab/model"
	errs "CProject/tools/errs"
)

// RequestTimeout 每个请求的硬超时：存储变慢不能拖垮心跳/轮询节奏。
const RequestTimeout = 5 * time.Second

// Client /api/collaboration 的 HTTP 客户端。
// 编辑器侧 bot、压测脚本、e2e 测试共用。
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: RequestTimeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	u := c.baseURL + "/api/collaboration" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errs.WrapMsg(err, "marshal request")
		}
		rd = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return errs.WrapMsg(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.WrapMsg(err, "request", "path", path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var envelope struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		return errs.New(fmt.Sprintf("http %d", resp.StatusCode), "error", envelope.Error, "path", path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// UpdatePresence join / heartbeat / leave。
func (c *Client) UpdatePresence(ctx context.Context, sceneID, userID string, userInfo map[string]any, action model.PresenceAction) error {
	body := map[string]any{
		"userId":  userID,
		"sceneId": sceneID,
		"action":  string(action),
	}
	if userInfo != nil {
		body["userInfo"] = userInfo
	}
	return c.do(ctx, http.MethodPost, "/presence", nil, body, nil)
}

// Poll 拉取场景活跃用户。
func (c *Client) Poll(ctx context.Context, sceneID string) ([]*model.PresenceRecord, error) {
	var out struct {
		ActiveUsers []*model.PresenceRecord `json:"activeUsers"`
	}
	q := url.Values{"sceneId": {sceneID}}
	q.Set("lastPoll", time.Now().UTC().Format(time.RFC3339Nano))
	if err := c.do(ctx, http.MethodGet, "/poll", q, nil, &out); err != nil {
		return nil, err
	}
	return out.ActiveUsers, nil
}

func (c *Client) SetHighlight(ctx context.Context, sceneID, userID, userName, objectID, action string) error {
	return c.do(ctx, http.MethodPost, "/highlight", nil, map[string]any{
		"sceneId":  sceneID,
		"userId":   userID,
		"userName": userName,
		"objectId": objectID,
		"action":   action,
	}, nil)
}

func (c *Client) ClearHighlight(ctx context.Context, sceneID, userID string) error {
	q := url.Values{"sceneId": {sceneID}, "userId": {userID}}
	return c.do(ctx, http.MethodDelete, "/highlight", q, nil, nil)
}

func (c *Client) Highlights(ctx context.Context, sceneID string) ([]*model.HighlightRecord, error) {
	var out struct {
		Highlights []*model.HighlightRecord `json:"highlights"`
	}
	q := url.Values{"sceneId": {sceneID}}
	if err := c.do(ctx, http.MethodGet, "/highlight", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Highlights, nil
}

func (c *Client) AppendLog(ctx context.Context, entry *model.LogEntry) error {
	body := map[string]any{
		"sceneId":  entry.SceneID,
		"userId":   entry.UserID,
		"userName": entry.UserName,
		"action":   entry.Action,
		"details":  entry.Details,
	}
	if !entry.Timestamp.IsZero() {
		body["timestamp"] = entry.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return c.do(ctx, http.MethodPost, "/logs", nil, body, nil)
}

func (c *Client) Logs(ctx context.Context, sceneID string) ([]*model.LogEntry, error) {
	var out struct {
		Logs []*model.LogEntry `json:"logs"`
	}
	q := url.Values{"sceneId": {sceneID}}
	if err := c.do(ctx, http.MethodGet, "/logs", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}
