package store

import (
	"context"
	"sync"
	"time"

	"CProject/module/collab/model"
)

// MemoryStore 单进程内存实现，demo 模式和测试用。
// 原型里的 process-global map 在这里收敛成一个显式构造的对象，
// 由组合根注入；没有任何包级可变状态。
//
// 过期行为与线上实现一致：写入不清理，读取时按 expire_at > now 过滤。
// Sweep 提供可选的存储卫生，不承担正确性。
type MemoryStore struct {
	mu         sync.RWMutex
	presence   map[string]map[string]*model.PresenceRecord // scene -> user -> rec
	highlights map[string]map[string]*model.HighlightRecord
	logs       map[string][]*model.LogEntry // scene -> append-only
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		presence:   make(map[string]map[string]*model.PresenceRecord),
		highlights: make(map[string]map[string]*model.HighlightRecord),
		logs:       make(map[string][]*model.LogEntry),
	}
}

// Presence / Highlight / Logs 把同一个 MemoryStore 投影成三个接口，
// 组合根可以用一个实例喂满全部依赖。
func (m *MemoryStore) Presence() PresenceStore    { return (*memPresence)(m) }
func (m *MemoryStore) Highlights() HighlightStore { return (*memHighlight)(m) }
func (m *MemoryStore) Logs() ActivityLogStore     { return (*memLogs)(m) }

// Sweep 物理删除所有 expire_at <= now 的行，返回删除数。
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for scene, users := range m.presence {
		for uid, rec := range users {
			if !rec.Live(now) {
				delete(users, uid)
				n++
			}
		}
		if len(users) == 0 {
			delete(m.presence, scene)
		}
	}
	for scene, users := range m.highlights {
		for uid, rec := range users {
			if !rec.Live(now) {
				delete(users, uid)
				n++
			}
		}
		if len(users) == 0 {
			delete(m.highlights, scene)
		}
	}
	for scene, entries := range m.logs {
		kept := entries[:0]
		for _, e := range entries {
			if e.Live(now) {
				kept = append(kept, e)
			} else {
				n++
			}
		}
		if len(kept) == 0 {
			delete(m.logs, scene)
		} else {
			m.logs[scene] = kept
		}
	}
	return n
}

// ===== presence =====

type memPresence MemoryStore

func (m *memPresence) Upsert(_ context.Context, rec *model.PresenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	users, ok := m.presence[rec.SceneID]
	if !ok {
		users = make(map[string]*model.PresenceRecord)
		m.presence[rec.SceneID] = users
	}
	cp := *rec
	users[rec.UserID] = &cp
	return nil
}

func (m *memPresence) Delete(_ context.Context, sceneID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if users, ok := m.presence[sceneID]; ok {
		delete(users, userID)
	}
	return nil
}

func (m *memPresence) ListActive(_ context.Context, sceneID string, now time.Time) ([]*model.PresenceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := m.presence[sceneID]
	out := make([]*model.PresenceRecord, 0, len(users))
	for _, rec := range users {
		if rec.Live(now) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ===== highlight =====

type memHighlight MemoryStore

func (m *memHighlight) Upsert(_ context.Context, rec *model.HighlightRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	users, ok := m.highlights[rec.SceneID]
	if !ok {
		users = make(map[string]*model.HighlightRecord)
		m.highlights[rec.SceneID] = users
	}
	cp := *rec
	users[rec.UserID] = &cp
	return nil
}

func (m *memHighlight) Delete(_ context.Context, sceneID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if users, ok := m.highlights[sceneID]; ok {
		delete(users, userID)
	}
	return nil
}

func (m *memHighlight) ListActive(_ context.Context, sceneID string, now time.Time) ([]*model.HighlightRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := m.highlights[sceneID]
	out := make([]*model.HighlightRecord, 0, len(users))
	for _, rec := range users {
		if rec.Live(now) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ===== logs =====

type memLogs MemoryStore

func (m *memLogs) Append(_ context.Context, entry *model.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.logs[entry.SceneID] = append(m.logs[entry.SceneID], &cp)
	return nil
}

func (m *memLogs) List(_ context.Context, sceneID string, now time.Time) ([]*model.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.logs[sceneID]
	out := make([]*model.LogEntry, 0, len(entries))
	for _, e := range entries {
		if e.Live(now) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
