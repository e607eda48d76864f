package global

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"CProject/logger"
	mgoSrv "CProject/service/mgo"
	"CProject/service/natsx"
	redis "CProject/service/storage/redis"
	tools "CProject/tools"
	"CProject/tools/decode"
	ids "CProject/tools/ids"
)

const (
	ModeMemory = "memory" // 单进程内存存储，本地 demo 用
	ModeFull   = "full"   // redis + mongo + nats
)

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"poolSize"`
}

type MongoConfig struct {
	Uri         string `json:"uri"`
	Database    string `json:"database"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	MaxPoolSize int    `json:"maxPoolSize"`
}

type NatsConfig struct {
	Servers  []string `json:"servers"`
	Username string   `json:"username"`
	Password string   `json:"password"`
}

type AppConfig struct {
	Mode         string        `json:"mode"`
	NodeID       int64         `json:"nodeId"`
	Port         int           `json:"port"`
	AuthEnabled  bool          `json:"authEnabled"`
	JwtSecret    string        `json:"jwtSecret"`
	PresenceTTL  time.Duration `json:"presenceTtl"`
	HighlightTTL time.Duration `json:"highlightTtl"`
	LogTTL       time.Duration `json:"logTtl"`

	Redis RedisConfig `json:"redis"`
	Mongo MongoConfig `json:"mongo"`
	Nats  NatsConfig  `json:"nats"`
}

var Global = AppConfig{
	Mode:        ModeFull,
	NodeID:      100,
	Port:        8080,
	AuthEnabled: true,
	Redis:       RedisConfig{Addr: "127.0.0.1:6379", PoolSize: 20},
	Mongo:       MongoConfig{Uri: "mongodb://localhost:27017", Database: "scenesync", MaxPoolSize: 20},
	Nats:        NatsConfig{Servers: []string{"nats://127.0.0.1:4222"}},
}

// Load 可选配置文件（JSON，路径来自 COLLAB_CONFIG）+ 环境变量覆盖。
// 文件是整块覆盖（宽松解码），环境变量再盖一层，便于容器部署。
func Load() {
	if path := os.Getenv("COLLAB_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Warnf("[config] read %s: %v", path, err)
		} else {
			var m map[string]any
			if err := json.Unmarshal(raw, &m); err != nil {
				logger.Warnf("[config] parse %s: %v", path, err)
			} else if cfg, err := decode.DecodeMap[AppConfig](m); err != nil {
				logger.Warnf("[config] decode %s: %v", path, err)
			} else {
				Global = *cfg
			}
		}
	}

	Global.Mode = tools.GetEnv("COLLAB_MODE", Global.Mode)
	Global.Port = tools.GetEnvInt("COLLAB_PORT", Global.Port)
	Global.AuthEnabled = tools.GetEnvBool("COLLAB_AUTH", Global.AuthEnabled)
	Global.JwtSecret = tools.GetEnv("COLLAB_JWT_SECRET", Global.JwtSecret)
	Global.Redis.Addr = tools.GetEnv("REDIS_ADDR", Global.Redis.Addr)
	Global.Redis.Password = tools.GetEnv("REDIS_PASSWORD", Global.Redis.Password)
	Global.Mongo.Uri = tools.GetEnv("MONGO_URI", Global.Mongo.Uri)
	Global.Mongo.Database = tools.GetEnv("MONGO_DB", Global.Mongo.Database)
	Global.PresenceTTL = tools.GetEnvDuration("COLLAB_PRESENCE_TTL", Global.PresenceTTL)
	Global.HighlightTTL = tools.GetEnvDuration("COLLAB_HIGHLIGHT_TTL", Global.HighlightTTL)
	Global.LogTTL = tools.GetEnvDuration("COLLAB_LOG_TTL", Global.LogTTL)
	if v := os.Getenv("NATS_SERVERS"); v != "" {
		Global.Nats.Servers = []string{v}
	}
}

func GetJwtSecret() []byte {
	if Global.JwtSecret != "" {
		return []byte(Global.JwtSecret)
	}
	// demo 默认密钥，生产用 COLLAB_JWT_SECRET 覆盖
	return []byte("mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o=")
}

// ConfigAll 按 Mode 初始化基础设施。memory 模式什么都不连。
func ConfigAll(ctx context.Context) error {
	ConfigIds()
	if Global.Mode == ModeMemory {
		logger.Infof("[config] memory mode, skip redis/mongo/nats")
		return nil
	}
	if err := ConfigRedis(); err != nil {
		return err
	}
	if err := ConfigMgo(ctx); err != nil {
		return err
	}
	ConfigNats()
	return nil
}

func ConfigIds() {
	ids.SetNodeID(Global.NodeID)
}

func ConfigRedis() error {
	return redis.InitRedis(redis.Config{
		Addr:     Global.Redis.Addr,
		Password: Global.Redis.Password,
		DB:       Global.Redis.DB,
		PoolSize: Global.Redis.PoolSize,
	})
}

func ConfigMgo(ctx context.Context) error {
	cfg := &mgoSrv.Config{
		Uri:         Global.Mongo.Uri,
		Database:    Global.Mongo.Database,
		Username:    Global.Mongo.Username,
		Password:    Global.Mongo.Password,
		MaxPoolSize: Global.Mongo.MaxPoolSize,
	}
	mgoSrv.StartAsync(ctx, cfg)

	wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return mgoSrv.WaitReady(wctx, mgoSrv.Manager())
}

// ConfigNats 失败不致命：没有事件总线就退化成纯轮询。
func ConfigNats() {
	natsx.StartNats(natsx.NatsxConfig{
		Servers:  Global.Nats.Servers,
		Name:     "scenesync",
		Username: Global.Nats.Username,
		Password: Global.Nats.Password,
	})
}
