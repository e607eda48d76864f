package store

import (
	"context"
	"time"

	"CProject/module/collab/model"
)

// 三个接口就是“带过期字段的KV存储”在三类记录上的投影。
// 实现只负责过滤掉 expire_at <= now 的行；排序、截断、二次新鲜度
// 过滤都在 service 层做。组合根负责选择实现（redis/mongo/memory），
// 业务代码永远只见接口。

type PresenceStore interface {
	// Upsert 覆盖写 (scene,user) 的在场记录，幂等。
	Upsert(ctx context.Context, rec *model.PresenceRecord) error
	// Delete 幂等删除；记录不存在不算错误。
	Delete(ctx context.Context, sceneID, userID string) error
	// ListActive 返回 expire_at > now 的记录，无序。
	ListActive(ctx context.Context, sceneID string, now time.Time) ([]*model.PresenceRecord, error)
}

type HighlightStore interface {
	Upsert(ctx context.Context, rec *model.HighlightRecord) error
	Delete(ctx context.Context, sceneID, userID string) error
	ListActive(ctx context.Context, sceneID string, now time.Time) ([]*model.HighlightRecord, error)
}

type ActivityLogStore interface {
	// Append 追加一条日志；日志写入后不可变。
	Append(ctx context.Context, entry *model.LogEntry) error
	// List 返回 scene 下 expire_at > now 的日志，无序。
	// 排序和“最新50条”截断在 service 层做；活跃集合本身被 TTL 限界。
	List(ctx context.Context, sceneID string, now time.Time) ([]*model.LogEntry, error)
}
