package client

import (
	"context"
	"time"

	"CProject/logger"
	"CProject/module/collab/model"
)

// PollInterval 活跃用户轮询节奏。
const PollInterval = 3 * time.Second

// Poller 周期拉取场景活跃用户并回调。Kick 触发一次计划外轮询，
// 用在本地在场状态刚变化、想立刻刷 UI 的场合。
// 轮询是幂等只读：失败只打日志，本轮跳过，显示停留在上一次结果。
type Poller struct {
	c        *Client
	sceneID  string
	interval time.Duration
	onUpdate func([]*model.PresenceRecord)
	kick     chan struct{}
}

func NewPoller(c *Client, sceneID string, onUpdate func([]*model.PresenceRecord)) *Poller {
	return &Poller{
		c:        c,
		sceneID:  sceneID,
		interval: PollInterval,
		onUpdate: onUpdate,
		kick:     make(chan struct{}, 1),
	}
}

// Kick 非阻塞：已有待处理的手动轮询时直接合并。
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run 阻塞轮询直到 ctx 取消。调用方自己起 goroutine。
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		case <-p.kick:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()
	users, err := p.c.Poll(pctx, p.sceneID)
	if err != nil {
		logger.Warnf("[poller] poll failed scene=%s: %v", p.sceneID, err)
		return
	}
	if p.onUpdate != nil {
		p.onUpdate(users)
	}
}
