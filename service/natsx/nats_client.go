package natsx

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsxConfig 客户端配置
type NatsxConfig struct {
	Servers       []string
	Name          string
	Username      string
	Password      string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NatsxClient 统一客户端（协作服务只用 core 模式：
// 变更通知允许丢，at-most-once 足够，轮询兜底正确性）。
type NatsxClient struct {
	cfg NatsxConfig
	nc  *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNatsxClient 连接 NATS
func NewNatsxClient(cfg NatsxConfig) (*NatsxClient, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, err
	}
	return &NatsxClient{cfg: cfg, nc: nc}, nil
}

// Publish core 发布，失败由调用方决定是否忽略。
func (c *NatsxClient) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

// Subscribe core 订阅；subject 支持通配（collab.*.scene-1）。
func (c *NatsxClient) Subscribe(subject string, cb func(subject string, data []byte)) (func(), error) {
	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) {
		cb(m.Subject, append([]byte(nil), m.Data...))
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close 优雅关闭
func (c *NatsxClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		_ = sub.Drain()
	}
	c.subs = nil
	if c.nc != nil {
		return c.nc.Drain()
	}
	return nil
}
