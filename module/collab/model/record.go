package model

import (
	"time"
)

// ===== 常量 =====
//
// 三类记录共用“写入时算好绝对过期时间，读取时按 expire_at > now 过滤”的模型。
// 过期行留在存储里由底层 TTL 机制回收，读路径的过滤才是正确性边界。
const (
	PresenceTTL   = 60 * time.Second   // 在场记录 TTL
	RecencySpan   = 30 * time.Second   // 客户端二次新鲜度窗口（lastSeen）
	HighlightTTL  = 300 * time.Second  // 对象高亮 TTL
	LogTTL        = 3600 * time.Second // 活动日志保留窗口
	LogListLimit  = 50                 // 单场景日志读取上限
	LogCollection = "collab_logs"      // Mongo 集合名
)

// PresenceAction 在场记录的动作枚举。
type PresenceAction string

const (
	ActionJoin      PresenceAction = "join"
	ActionHeartbeat PresenceAction = "heartbeat"
	ActionLeave     PresenceAction = "leave"
)

// Valid 只放行三个已知动作；空串按 join 处理在 handler 层做。
func (a PresenceAction) Valid() bool {
	switch a {
	case ActionJoin, ActionHeartbeat, ActionLeave:
		return true
	}
	return false
}

// PresenceRecord 一个用户在一个场景里的在场状态。
// (scene_id, user_id) 唯一；join/heartbeat 覆盖写，leave 直接删除。
type PresenceRecord struct {
	SceneID  string         `json:"sceneId" bson:"scene_id"`
	UserID   string         `json:"userId" bson:"user_id"`
	UserInfo map[string]any `json:"userInfo,omitempty" bson:"user_info,omitempty"` // 昵称/头像等快照
	Cursor   map[string]any `json:"cursor,omitempty" bson:"cursor,omitempty"`     // 不透明的光标位置
	Action   PresenceAction `json:"action" bson:"action"`
	LastSeen time.Time      `json:"lastSeen" bson:"last_seen"`
	ExpireAt int64          `json:"expireAt" bson:"expire_at"` // Unix 秒
}

// Live 读取侧的 TTL 过滤：expireAt == now 视为已过期。
func (p *PresenceRecord) Live(now time.Time) bool {
	return p.ExpireAt > now.Unix()
}

// Fresh 二次新鲜度过滤：lastSeen 超过 RecencySpan 即使未到 TTL 也视为离线。
func (p *PresenceRecord) Fresh(now time.Time) bool {
	return now.Sub(p.LastSeen) <= RecencySpan
}

// HighlightRecord 一个用户当前高亮的对象。
// (scene_id, user_id) 唯一：新高亮覆盖旧高亮。
type HighlightRecord struct {
	SceneID   string    `json:"sceneId" bson:"scene_id"`
	UserID    string    `json:"userId" bson:"user_id"`
	UserName  string    `json:"userName,omitempty" bson:"user_name,omitempty"`
	ObjectID  string    `json:"objectId" bson:"object_id"`
	Action    string    `json:"action,omitempty" bson:"action,omitempty"` // select / deselect 等自由文本
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	ExpireAt  int64     `json:"expireAt" bson:"expire_at"`
}

func (h *HighlightRecord) Live(now time.Time) bool {
	return h.ExpireAt > now.Unix()
}

// LogEntry 场景内一条编辑动作日志。写入后不可变，按 TTL 过期。
type LogEntry struct {
	ID        string    `json:"id" bson:"_id"` // 雪花ID
	SceneID   string    `json:"sceneId" bson:"scene_id"`
	UserID    string    `json:"userId" bson:"user_id"`
	UserName  string    `json:"userName,omitempty" bson:"user_name,omitempty"`
	Action    string    `json:"action" bson:"action"`   // object_created / object_moved / ...
	Details   string    `json:"details,omitempty" bson:"details,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	ExpireAt  int64     `json:"expireAt" bson:"expire_at"`
}

func (l *LogEntry) Live(now time.Time) bool {
	return l.ExpireAt > now.Unix()
}

// Event 发往 NATS / WebSocket 的变更通知（尽力而为，不承载正确性）。
type Event struct {
	Kind      string    `json:"kind"` // presence | highlight | log
	SceneID   string    `json:"sceneId"`
	UserID    string    `json:"userId,omitempty"`
	Action    string    `json:"action,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
