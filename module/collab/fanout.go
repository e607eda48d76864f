package collab

import (
	"encoding/json"
	"strings"
	"sync"

	"CProject/logger"
	"CProject/module/collab/model"
	"CProject/service/natsx"
	"CProject/tools/safe"
)

// ===== 事件扇出 =====
//
// 变更通知链路：service -> EventBus -> NATS -> Hub -> WebSocket 客户端。
// NATS 不可用时 EventBus 直接投给本进程 Hub（单节点退化）。
// 全链路尽力而为：任何一环失败只影响推送及时性，轮询兜底。

const subjectPrefix = "collab"

var sceneCleaner = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// sceneKey 场景ID里的点/通配符替换掉，避免破坏 NATS 主题层级。
func sceneKey(sceneID string) string {
	return sceneCleaner.Replace(sceneID)
}

// EventSubject collab.<kind>.<sceneId>
func EventSubject(kind, sceneID string) string {
	return subjectPrefix + "." + kind + "." + sceneKey(sceneID)
}

// EventBus 实现 service.Publisher。
type EventBus struct {
	hub *Hub
}

func NewEventBus(hub *Hub) *EventBus {
	return &EventBus{hub: hub}
}

func (b *EventBus) Publish(ev model.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if nc := natsx.Get(); nc != nil {
		if err := nc.Publish(EventSubject(ev.Kind, ev.SceneID), payload); err != nil {
			logger.Warnf("[fanout] nats publish failed: %v", err)
		}
		return // Hub 从 NATS 订阅回流，避免本地双投
	}
	if b.hub != nil {
		b.hub.Deliver(ev.SceneID, payload)
	}
}

// ===== Hub =====

type fanoutJob struct {
	conns   []*StreamClient
	payload []byte
}

// Hub 按场景管理 WebSocket 订阅者，worker 池扇出。
type Hub struct {
	mu     sync.RWMutex
	scenes map[string]map[*StreamClient]struct{}
	jobs   chan fanoutJob
}

func NewHub(workers, queue int) *Hub {
	if workers <= 0 {
		workers = 2
	}
	if queue <= 0 {
		queue = 256
	}
	h := &Hub{
		scenes: make(map[string]map[*StreamClient]struct{}),
		jobs:   make(chan fanoutJob, queue),
	}
	for i := 0; i < workers; i++ {
		safe.SafeGo(func() {
			for job := range h.jobs {
				for _, c := range job.conns {
					select {
					case c.send <- job.payload:
					default:
						// 慢客户端直接跳过，不阻塞扇出
					}
				}
			}
		})
	}
	return h
}

// StartRelay 订阅 NATS 上本服务的全部事件主题并回流到 Hub。
// 多节点部署时每个节点都订阅，各自推自己的 WebSocket 客户端。
func (h *Hub) StartRelay() {
	nc := natsx.Get()
	if nc == nil {
		return
	}
	_, err := nc.Subscribe(subjectPrefix+".>", func(subject string, data []byte) {
		// collab.<kind>.<sceneId>
		parts := strings.SplitN(subject, ".", 3)
		if len(parts) != 3 {
			return
		}
		h.Deliver(parts[2], data)
	})
	if err != nil {
		logger.Warnf("[fanout] relay subscribe failed: %v", err)
	}
}

// Deliver 把事件推给某场景的所有订阅者。注册和投递都过 sceneKey，
// 原始ID和主题里清洗过的形态落在同一个桶。
func (h *Hub) Deliver(sceneID string, payload []byte) {
	key := sceneKey(sceneID)
	h.mu.RLock()
	set := h.scenes[key]
	conns := make([]*StreamClient, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}
	select {
	case h.jobs <- fanoutJob{conns: conns, payload: payload}:
	default:
		logger.Warnf("[fanout] job queue full, drop event scene=%s", sceneID)
	}
}

func (h *Hub) register(sceneID string, c *StreamClient) {
	key := sceneKey(sceneID)
	h.mu.Lock()
	set, ok := h.scenes[key]
	if !ok {
		set = make(map[*StreamClient]struct{})
		h.scenes[key] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(sceneID string, c *StreamClient) {
	key := sceneKey(sceneID)
	h.mu.Lock()
	if set, ok := h.scenes[key]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.scenes, key)
		}
	}
	h.mu.Unlock()
	// send 通道不关：worker 可能还拿着连接快照，写关闭通道会 panic。
	// 写协程靠 done 退出，通道交给 GC。
}
