package mgo

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"CProject/logger"
	errs "CProject/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config represents the MongoDB configuration.
type Config struct {
	Uri         string
	Database    string
	Username    string
	Password    string
	AuthSource  string
	MaxPoolSize int
}

type MongoManager struct {
	mu        sync.RWMutex
	db        *mongo.Database
	readyCh   chan struct{} // 首次就绪通知；只会被 close 一次
	readyOnce sync.Once
}

var globalMgr = &MongoManager{readyCh: make(chan struct{})}

func Manager() *MongoManager { return globalMgr }

// GetDB 返回当前数据库句柄；未就绪时返回 nil。
func GetDB() *mongo.Database {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	return globalMgr.db
}

// StartAsync 一直运行到 ctx.Done()；首次连上时 close readyCh，
// 掉线由驱动自己重连，这里只做带退避的首连。
func StartAsync(ctx context.Context, cfg *Config) {
	go func() {
		const (
			baseBackoff = 200 * time.Millisecond
			maxBackoff  = 5 * time.Second
		)
		attempt := 0
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			db, err := connect(ctx, cfg)
			if err == nil {
				globalMgr.mu.Lock()
				globalMgr.db = db
				globalMgr.mu.Unlock()
				globalMgr.readyOnce.Do(func() { close(globalMgr.readyCh) })
				return
			}
			logger.Warnf("[mgo] connect failed: %v", err)

			// 退避 + 抖动
			backoff := baseBackoff << attempt
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			jitter := time.Duration(rand.Int63n(int64(backoff/5) + 1))
			timer := time.NewTimer(backoff - jitter/2)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			if attempt < 6 {
				attempt++
			}
		}
	}()
}

// WaitReady 阻塞到首次连接成功或 ctx 取消。
func WaitReady(ctx context.Context, m *MongoManager) error {
	select {
	case <-m.readyCh:
		return nil
	case <-ctx.Done():
		return errs.WrapMsg(ctx.Err(), "wait mongo ready")
	}
}

func connect(ctx context.Context, cfg *Config) (*mongo.Database, error) {
	if cfg.Uri == "" {
		return nil, errs.New("mongo uri is required")
	}
	opts := options.Client().ApplyURI(cfg.Uri)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	}
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cli, err := mongo.Connect(cctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(cctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return cli.Database(cfg.Database), nil
}
