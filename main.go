package main

import (
	"context"
	"fmt"

	"CProject/global"
	"CProject/logger"
	mid "CProject/middleware"
	"CProject/middleware/security"
	collab "CProject/module/collab"
	"CProject/module/collab/service"
	"CProject/module/collab/store"
	mgoSrv "CProject/service/mgo"

	"github.com/gin-gonic/gin"
)

func main() {
	global.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := global.ConfigAll(ctx); err != nil {
		logger.Errorf("bootstrap failed: %v", err)
		return
	}

	// 组合根：按模式选存储实现，业务层只见接口
	var (
		presence   store.PresenceStore
		highlights store.HighlightStore
		logs       store.ActivityLogStore
	)
	if global.Global.Mode == global.ModeMemory {
		mem := store.NewMemoryStore()
		presence, highlights, logs = mem.Presence(), mem.Highlights(), mem.Logs()
	} else {
		presence = store.NewRedisPresenceStore()
		highlights = store.NewRedisHighlightStore()
		mongoLogs := store.NewMongoLogStore(mgoSrv.GetDB())
		if err := mongoLogs.EnsureIndexes(ctx); err != nil {
			logger.Warnf("ensure log indexes: %v", err)
		}
		logs = mongoLogs
	}

	hub := collab.NewHub(4, 1024)
	hub.StartRelay()

	svc := service.New(service.Options{
		Presence:     presence,
		Highlights:   highlights,
		Logs:         logs,
		Events:       collab.NewEventBus(hub),
		PresenceTTL:  global.Global.PresenceTTL,
		HighlightTTL: global.Global.HighlightTTL,
		LogTTL:       global.Global.LogTTL,
	})
	handler := collab.NewHandler(svc, hub)

	r := gin.Default()
	r.Use(mid.Origin())

	authOpts := security.DefaultOptions(global.GetJwtSecret())
	authOpts.Enabled = global.Global.AuthEnabled
	api := r.Group("/api/collaboration", security.Middleware(authOpts))
	handler.RegisterRoutes(api)

	addr := fmt.Sprintf(":%d", global.Global.Port)
	logger.Infof("scenesync listening on %s (mode=%s)", addr, global.Global.Mode)
	if err := r.Run(addr); err != nil {
		logger.Errorf("server stopped: %v", err)
	}
}
