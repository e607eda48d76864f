package natsx

import (
	"sync"

	"CProject/logger"
)

var (
	globalMgr *NatsxClient
	startOnce sync.Once
)

// StartNats 启动全局 NATS（只会执行一次）。连接失败不致命：
// 协作服务在没有事件总线时退化为纯轮询。
func StartNats(cfg NatsxConfig) {
	startOnce.Do(func() {
		cli, err := NewNatsxClient(cfg)
		if err != nil {
			logger.Warnf("[natsx] start failed, event fanout disabled: %v", err)
			return
		}
		globalMgr = cli
	})
}

// Get 获取全局单例；未启动/启动失败时返回 nil。
func Get() *NatsxClient {
	return globalMgr
}

// StopNats 优雅关闭（可选）
func StopNats() error {
	if globalMgr == nil {
		return nil
	}
	err := globalMgr.Close()
	globalMgr = nil
	return err
}
