package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"CProject/module/collab/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func presenceRec(sceneID, userID string, now time.Time, ttl time.Duration) *model.PresenceRecord {
	return &model.PresenceRecord{
		SceneID:  sceneID,
		UserID:   userID,
		Action:   model.ActionJoin,
		LastSeen: now,
		ExpireAt: now.Add(ttl).Unix(),
	}
}

func TestPresenceTTLBoundary(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	ps := NewMemoryStore().Presence()

	// expireAt > now 保留
	require.NoError(t, ps.Upsert(ctx, presenceRec("s1", "alive", now, 60*time.Second)))
	// expireAt == now 算过期（gt 语义）
	exact := presenceRec("s1", "edge", now, 0)
	exact.ExpireAt = now.Unix()
	require.NoError(t, ps.Upsert(ctx, exact))
	// expireAt < now 过期
	dead := presenceRec("s1", "dead", now, 0)
	dead.ExpireAt = now.Add(-time.Second).Unix()
	require.NoError(t, ps.Upsert(ctx, dead))

	got, err := ps.ListActive(ctx, "s1", now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alive", got[0].UserID)
}

func TestPresenceUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	ps := NewMemoryStore().Presence()

	join := presenceRec("s1", "u1", now, 60*time.Second)
	require.NoError(t, ps.Upsert(ctx, join))

	later := now.Add(20 * time.Second)
	hb := presenceRec("s1", "u1", later, 60*time.Second)
	hb.Action = model.ActionHeartbeat
	require.NoError(t, ps.Upsert(ctx, hb))

	got, err := ps.ListActive(ctx, "s1", later)
	require.NoError(t, err)
	require.Len(t, got, 1, "join then heartbeat must leave exactly one record")
	assert.Equal(t, model.ActionHeartbeat, got[0].Action)
	assert.Equal(t, later.Add(60*time.Second).Unix(), got[0].ExpireAt, "expireAt reflects the second call")
	assert.WithinDuration(t, later, got[0].LastSeen, time.Second)
}

func TestPresenceDeleteBypassesTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	ps := NewMemoryStore().Presence()

	require.NoError(t, ps.Upsert(ctx, presenceRec("s1", "u1", now, 60*time.Second)))
	require.NoError(t, ps.Delete(ctx, "s1", "u1"))

	got, err := ps.ListActive(ctx, "s1", now.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, got, "explicit delete must not wait for TTL")

	// 幂等：再删不报错
	require.NoError(t, ps.Delete(ctx, "s1", "u1"))
	require.NoError(t, ps.Delete(ctx, "never-seen", "u1"))
}

func TestHighlightOverwrite(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	hs := NewMemoryStore().Highlights()

	first := &model.HighlightRecord{
		SceneID: "s1", UserID: "u1", ObjectID: "obj-1",
		Timestamp: now, ExpireAt: now.Add(300 * time.Second).Unix(),
	}
	require.NoError(t, hs.Upsert(ctx, first))

	second := &model.HighlightRecord{
		SceneID: "s1", UserID: "u1", ObjectID: "obj-2",
		Timestamp: now.Add(time.Second), ExpireAt: now.Add(301 * time.Second).Unix(),
	}
	require.NoError(t, hs.Upsert(ctx, second))

	got, err := hs.ListActive(ctx, "s1", now.Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, got, 1, "one highlight per (scene,user)")
	assert.Equal(t, "obj-2", got[0].ObjectID)
}

func TestLogSceneIsolation(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	ls := NewMemoryStore().Logs()

	for i := 0; i < 3; i++ {
		require.NoError(t, ls.Append(ctx, &model.LogEntry{
			ID: fmt.Sprintf("a-%d", i), SceneID: "A", UserID: "u1", Action: "object_created",
			Timestamp: now, ExpireAt: now.Add(time.Hour).Unix(),
		}))
	}
	require.NoError(t, ls.Append(ctx, &model.LogEntry{
		ID: "b-0", SceneID: "B", UserID: "u1", Action: "object_moved",
		Timestamp: now, ExpireAt: now.Add(time.Hour).Unix(),
	}))

	gotB, err := ls.List(ctx, "B", now)
	require.NoError(t, err)
	require.Len(t, gotB, 1)
	assert.Equal(t, "b-0", gotB[0].ID)

	gotA, err := ls.List(ctx, "A", now)
	require.NoError(t, err)
	assert.Len(t, gotA, 3)
}

func TestLogTTLFilter(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	ls := NewMemoryStore().Logs()

	require.NoError(t, ls.Append(ctx, &model.LogEntry{
		ID: "old", SceneID: "s1", UserID: "u1", Action: "object_created",
		Timestamp: now.Add(-2 * time.Hour), ExpireAt: now.Add(-time.Hour).Unix(),
	}))
	require.NoError(t, ls.Append(ctx, &model.LogEntry{
		ID: "new", SceneID: "s1", UserID: "u1", Action: "object_created",
		Timestamp: now, ExpireAt: now.Add(time.Hour).Unix(),
	}))

	got, err := ls.List(ctx, "s1", now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestSweepReclaimsExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	mem := NewMemoryStore()
	ps := mem.Presence()

	require.NoError(t, ps.Upsert(ctx, presenceRec("s1", "alive", now, 60*time.Second)))
	dead := presenceRec("s1", "dead", now, 0)
	dead.ExpireAt = now.Add(-time.Minute).Unix()
	require.NoError(t, ps.Upsert(ctx, dead))

	n := mem.Sweep(now)
	assert.Equal(t, 1, n)

	// 清扫只是卫生，读路径结果不变
	got, err := ps.ListActive(ctx, "s1", now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alive", got[0].UserID)
}
