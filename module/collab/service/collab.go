package service

import (
	"context"
	"sort"
	"time"

	"CProject/logger"
	"CProject/module/collab/model"
	"CProject/module/collab/store"
	errs "CProject/tools/errs"
	"CProject/tools/ids"
	"CProject/tools/safe"

	"go.uber.org/zap"
)

// Publisher 变更通知出口（NATS / WebSocket hub）。尽力而为：
// 发布失败只记日志，轮询才是正确性路径。
type Publisher interface {
	Publish(ev model.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.Event) {}

// Options 组合根注入的依赖。Now 不传默认 time.Now（测试里注入假时钟）。
type Options struct {
	Presence   store.PresenceStore
	Highlights store.HighlightStore
	Logs       store.ActivityLogStore
	Events     Publisher
	Now        func() time.Time

	PresenceTTL  time.Duration // 默认 model.PresenceTTL
	HighlightTTL time.Duration
	LogTTL       time.Duration
}

// Collab 协作服务：在场/高亮/活动日志的全部业务规则。
// 存储只做“expire_at > now”过滤；这里负责双重新鲜度过滤、
// 排序截断、默认值填充和事件发布。
type Collab struct {
	presence   store.PresenceStore
	highlights store.HighlightStore
	logs       store.ActivityLogStore
	events     Publisher
	now        func() time.Time

	presenceTTL  time.Duration
	highlightTTL time.Duration
	logTTL       time.Duration
}

func New(opts Options) *Collab {
	safe.MustNotNil(opts.Presence, "presence store")
	safe.MustNotNil(opts.Highlights, "highlight store")
	safe.MustNotNil(opts.Logs, "activity log store")

	c := &Collab{
		presence:     opts.Presence,
		highlights:   opts.Highlights,
		logs:         opts.Logs,
		events:       opts.Events,
		now:          opts.Now,
		presenceTTL:  safe.DefaultDuration(opts.PresenceTTL, model.PresenceTTL),
		highlightTTL: safe.DefaultDuration(opts.HighlightTTL, model.HighlightTTL),
		logTTL:       safe.DefaultDuration(opts.LogTTL, model.LogTTL),
	}
	if c.events == nil {
		c.events = nopPublisher{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// ===== presence =====

// UpdatePresence join/heartbeat 覆盖写，leave 直接删除（不等 TTL）。
// 返回写入时间戳（响应体里回显给客户端）。
func (c *Collab) UpdatePresence(ctx context.Context, sceneID, userID string, userInfo map[string]any, action model.PresenceAction) (time.Time, error) {
	now := c.now()
	switch action {
	case model.ActionJoin, model.ActionHeartbeat:
		rec := &model.PresenceRecord{
			SceneID:  sceneID,
			UserID:   userID,
			UserInfo: userInfo,
			Action:   action,
			LastSeen: now,
			ExpireAt: now.Add(c.presenceTTL).Unix(),
		}
		if err := c.presence.Upsert(ctx, rec); err != nil {
			return now, errs.ErrBackendUnavailable.WrapMsg("presence upsert", "scene", sceneID, "user", userID)
		}
	case model.ActionLeave:
		if err := c.presence.Delete(ctx, sceneID, userID); err != nil {
			return now, errs.ErrBackendUnavailable.WrapMsg("presence delete", "scene", sceneID, "user", userID)
		}
	default:
		return now, errs.ErrArgs.WrapMsg("unknown action", "action", string(action))
	}

	c.events.Publish(model.Event{
		Kind:      "presence",
		SceneID:   sceneID,
		UserID:    userID,
		Action:    string(action),
		Timestamp: now,
	})
	return now, nil
}

// ActiveUsers 双重过滤：存储侧 expire_at > now，再叠加 lastSeen 的
// 30s 新鲜度窗口。有效存活窗口 = min(TTL, RecencySpan)，两层都不能省。
// 读失败降级为空集（只影响 UI 在线指示，下一轮轮询自然重试）。
func (c *Collab) ActiveUsers(ctx context.Context, sceneID string) []*model.PresenceRecord {
	now := c.now()
	recs, err := c.presence.ListActive(ctx, sceneID, now)
	if err != nil {
		logger.Warn("presence list degraded", zap.String("scene", sceneID), zap.Error(err))
		return []*model.PresenceRecord{}
	}
	out := make([]*model.PresenceRecord, 0, len(recs))
	for _, rec := range recs {
		if rec.Fresh(now) {
			out = append(out, rec)
		}
	}
	return out
}

// ===== highlight =====

// SetHighlight 同一用户同一场景只保留一个高亮，重复设置覆盖。
func (c *Collab) SetHighlight(ctx context.Context, rec *model.HighlightRecord) error {
	now := c.now()
	rec.Timestamp = now
	rec.ExpireAt = now.Add(c.highlightTTL).Unix()
	if err := c.highlights.Upsert(ctx, rec); err != nil {
		return errs.ErrBackendUnavailable.WrapMsg("highlight upsert", "scene", rec.SceneID, "user", rec.UserID)
	}
	c.events.Publish(model.Event{
		Kind:      "highlight",
		SceneID:   rec.SceneID,
		UserID:    rec.UserID,
		Action:    rec.Action,
		Timestamp: now,
	})
	return nil
}

// ClearHighlight 幂等：清除不存在的高亮也算成功。
func (c *Collab) ClearHighlight(ctx context.Context, sceneID, userID string) error {
	if err := c.highlights.Delete(ctx, sceneID, userID); err != nil {
		return errs.ErrBackendUnavailable.WrapMsg("highlight delete", "scene", sceneID, "user", userID)
	}
	c.events.Publish(model.Event{
		Kind:      "highlight",
		SceneID:   sceneID,
		UserID:    userID,
		Action:    "clear",
		Timestamp: c.now(),
	})
	return nil
}

// Highlights 读失败降级为空集，策略同 ActiveUsers。
func (c *Collab) Highlights(ctx context.Context, sceneID string) []*model.HighlightRecord {
	recs, err := c.highlights.ListActive(ctx, sceneID, c.now())
	if err != nil {
		logger.Warn("highlight list degraded", zap.String("scene", sceneID), zap.Error(err))
		return []*model.HighlightRecord{}
	}
	return recs
}

// ===== activity log =====

// AppendLog 填充默认值（雪花ID、服务端时间戳、过期时间）后追加。
// 客户端可以带自己的 timestamp（离线补传场景），其余字段以服务端为准。
func (c *Collab) AppendLog(ctx context.Context, entry *model.LogEntry) error {
	now := c.now()
	if entry.ID == "" {
		entry.ID = ids.GenerateString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	entry.ExpireAt = now.Add(c.logTTL).Unix()

	if err := c.logs.Append(ctx, entry); err != nil {
		return errs.ErrBackendUnavailable.WrapMsg("log append", "scene", entry.SceneID)
	}
	c.events.Publish(model.Event{
		Kind:      "log",
		SceneID:   entry.SceneID,
		UserID:    entry.UserID,
		Action:    entry.Action,
		Timestamp: now,
	})
	return nil
}

// Logs 取未过期日志，按时间倒序排好，截断到最新 50 条。
// 时间戳相同的相对顺序不保证（日志只做展示，不参与冲突裁决）。
func (c *Collab) Logs(ctx context.Context, sceneID string) ([]*model.LogEntry, error) {
	entries, err := c.logs.List(ctx, sceneID, c.now())
	if err != nil {
		return nil, errs.ErrBackendUnavailable.WrapMsg("log list", "scene", sceneID)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if len(entries) > model.LogListLimit {
		entries = entries[:model.LogListLimit]
	}
	return entries, nil
}
