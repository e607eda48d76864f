package client

import (
	"context"
	"sync"
	"time"

	"CProject/logger"
	"CProject/module/collab/model"
	"CProject/tools/safe"
)

// HeartbeatInterval 必须严格小于服务端 TTL（60s），留出丢一拍的余量。
const HeartbeatInterval = 15 * time.Second

// Session 维持一个用户在一个场景里的在场状态：
// Start 时 join，之后固定节奏心跳，Close 时尽力 leave。
// 心跳是 fire-and-forget：单次失败不重试，下一拍自然补上；
// leave 没送达也没关系，记录到 TTL 自己过期——这是设计内的失败路径。
type Session struct {
	c        *Client
	sceneID  string
	userID   string
	userInfo map[string]any
	interval time.Duration

	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewSession(c *Client, sceneID, userID string, userInfo map[string]any) *Session {
	return &Session{
		c:        c,
		sceneID:  sceneID,
		userID:   userID,
		userInfo: userInfo,
		interval: HeartbeatInterval,
	}
}

// Start join 一次（同步，失败返回错误），然后启动心跳循环。
func (s *Session) Start(ctx context.Context) error {
	jctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()
	if err := s.c.UpdatePresence(jctx, s.sceneID, s.userID, s.userInfo, model.ActionJoin); err != nil {
		return err
	}

	loopCtx, loopCancel := context.WithCancel(ctx)
	s.cancel = loopCancel

	safe.SafeGo(func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				hctx, hcancel := context.WithTimeout(loopCtx, RequestTimeout)
				if err := s.c.UpdatePresence(hctx, s.sceneID, s.userID, s.userInfo, model.ActionHeartbeat); err != nil {
					// 下一拍重试；对端在 min(TTL,30s) 内仍视我在线
					logger.Warnf("[session] heartbeat failed scene=%s user=%s: %v", s.sceneID, s.userID, err)
				}
				hcancel()
			}
		}
	})
	return nil
}

// Close 停掉心跳循环并尽力发 leave（不等待结果）。
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		safe.SafeGo(func() {
			ctx, cancel := context.WithTimeout(context.Background(), RequestTimeout)
			defer cancel()
			_ = s.c.UpdatePresence(ctx, s.sceneID, s.userID, nil, model.ActionLeave)
		})
	})
}
