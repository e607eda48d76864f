package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CProject/module/collab/model"
	redis2 "CProject/service/storage/redis"
	errs "CProject/tools/errs"

	"github.com/redis/go-redis/v9"
)

// ===== Key 布局 =====
//
// 每个场景的记录落在同一个 hash-tag 槽位里，Lua 里才能跨 key 原子操作：
//   值键：  <prefix>:{<scene>}:u:<user>   -> JSON，自带 TTL（EXPIREAT expire_at）
//   索引键：<prefix>idx:{<scene>}         -> ZSET member=userID score=expire_at
//
// 读路径先按 score 清掉过期成员（存储卫生，非正确性），再取 score > now 的
// member 并 GET 对应值键。值键的原生 TTL 与索引 score 一致，二者谁先生效
// 结果相同。

// 清过期 + 取有效member + 取值
// KEYS[1] = index zset
// ARGV[1] = nowUnix
// ARGV[2] = value key pattern 前缀，如 "cp:{scene-1}:u:"
const luaListActive = `
local zidx   = KEYS[1]
local now    = tonumber(ARGV[1])
local prefix = ARGV[2]

redis.call("ZREMRANGEBYSCORE", zidx, "-inf", now)

local members = redis.call("ZRANGEBYSCORE", zidx, "(" .. now, "+inf")
local out = {}
for _, uid in ipairs(members) do
  local v = redis.call("GET", prefix .. uid)
  if v then
    out[#out+1] = v
  else
    redis.call("ZREM", zidx, uid)
  end
end

if redis.call("ZCARD", zidx) > 0 then
  redis.call("EXPIRE", zidx, 3600)
end
return out
`

// 单记录删除（幂等）
// KEYS[1] = index zset
// KEYS[2] = value key
// ARGV[1] = member(userID)
// 返回：1=删掉了值键；0=不存在
const luaDeleteOne = `
local zidx = KEYS[1]
local kval = KEYS[2]
local uid  = ARGV[1]
local existed = redis.call("DEL", kval)
redis.call("ZREM", zidx, uid)
return existed
`

// sceneKV 按场景分区、带过期索引的 JSON 记录存储。
// presence 和 highlight 只差 key 前缀和 TTL，共用这一套。
type sceneKV struct {
	prefix  string
	luaList *redis.Script
	luaDel  *redis.Script
}

func newSceneKV(prefix string) *sceneKV {
	return &sceneKV{
		prefix:  prefix,
		luaList: redis.NewScript(luaListActive),
		luaDel:  redis.NewScript(luaDeleteOne),
	}
}

func (s *sceneKV) valueKey(sceneID, userID string) string {
	return fmt.Sprintf("%s:{%s}:u:%s", s.prefix, sceneID, userID)
}

func (s *sceneKV) indexKey(sceneID string) string {
	return fmt.Sprintf("%sidx:{%s}", s.prefix, sceneID)
}

func (s *sceneKV) valuePrefix(sceneID string) string {
	return fmt.Sprintf("%s:{%s}:u:", s.prefix, sceneID)
}

func (s *sceneKV) upsert(ctx context.Context, sceneID, userID string, expireAt int64, payload []byte) error {
	kVal := s.valueKey(sceneID, userID)
	zIdx := s.indexKey(sceneID)

	pipe := redis2.GetRedis().TxPipeline()
	pipe.Set(ctx, kVal, payload, 0)
	pipe.ExpireAt(ctx, kVal, time.Unix(expireAt, 0))
	pipe.ZAdd(ctx, zIdx, redis.Z{Score: float64(expireAt), Member: userID})
	pipe.Expire(ctx, zIdx, time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.WrapMsg(err, "redis upsert", "key", kVal)
	}
	return nil
}

func (s *sceneKV) delete(ctx context.Context, sceneID, userID string) error {
	_, err := s.luaDel.Run(ctx, redis2.GetRedis(),
		[]string{s.indexKey(sceneID), s.valueKey(sceneID, userID)},
		userID,
	).Int64()
	if err != nil {
		return errs.WrapMsg(err, "redis delete", "scene", sceneID, "user", userID)
	}
	return nil
}

func (s *sceneKV) listActive(ctx context.Context, sceneID string, now time.Time) ([]string, error) {
	vals, err := s.luaList.Run(ctx, redis2.GetRedis(),
		[]string{s.indexKey(sceneID)},
		now.Unix(), s.valuePrefix(sceneID),
	).StringSlice()
	if err != nil {
		return nil, errs.WrapMsg(err, "redis list", "scene", sceneID)
	}
	return vals, nil
}

// ===== Presence =====

type RedisPresenceStore struct {
	kv *sceneKV
}

func NewRedisPresenceStore() *RedisPresenceStore {
	return &RedisPresenceStore{kv: newSceneKV("cp")}
}

func (s *RedisPresenceStore) Upsert(ctx context.Context, rec *model.PresenceRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return errs.WrapMsg(err, "marshal presence")
	}
	return s.kv.upsert(ctx, rec.SceneID, rec.UserID, rec.ExpireAt, payload)
}

func (s *RedisPresenceStore) Delete(ctx context.Context, sceneID, userID string) error {
	return s.kv.delete(ctx, sceneID, userID)
}

func (s *RedisPresenceStore) ListActive(ctx context.Context, sceneID string, now time.Time) ([]*model.PresenceRecord, error) {
	vals, err := s.kv.listActive(ctx, sceneID, now)
	if err != nil {
		return nil, err
	}
	out := make([]*model.PresenceRecord, 0, len(vals))
	for _, v := range vals {
		var rec model.PresenceRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			// 脏数据跳过，不拖垮整个列表
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

// ===== Highlight =====

type RedisHighlightStore struct {
	kv *sceneKV
}

func NewRedisHighlightStore() *RedisHighlightStore {
	return &RedisHighlightStore{kv: newSceneKV("ch")}
}

func (s *RedisHighlightStore) Upsert(ctx context.Context, rec *model.HighlightRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return errs.WrapMsg(err, "marshal highlight")
	}
	return s.kv.upsert(ctx, rec.SceneID, rec.UserID, rec.ExpireAt, payload)
}

func (s *RedisHighlightStore) Delete(ctx context.Context, sceneID, userID string) error {
	return s.kv.delete(ctx, sceneID, userID)
}

func (s *RedisHighlightStore) ListActive(ctx context.Context, sceneID string, now time.Time) ([]*model.HighlightRecord, error) {
	vals, err := s.kv.listActive(ctx, sceneID, now)
	if err != nil {
		return nil, err
	}
	out := make([]*model.HighlightRecord, 0, len(vals))
	for _, v := range vals {
		var rec model.HighlightRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}
