package collab

import (
	"net/http"
	"time"

	"CProject/logger"
	errs "CProject/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// StreamClient 一条场景事件流连接。
type StreamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// HandleStream GET /stream?sceneId= 升级成 WebSocket，把该场景的
// 变更事件推给客户端。纯下行：收到的任何数据帧都忽略。
// 推送允许丢，客户端把事件当轮询触发器用，不能依赖送达。
func (h *Handler) HandleStream(c *gin.Context) {
	sceneID := c.Query("sceneId")
	if sceneID == "" {
		abortError(c, errs.ErrArgs.WrapMsg("sceneId is required"))
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[stream] upgrade error: %v", err)
		return
	}

	client := &StreamClient{conn: ws, send: make(chan []byte, 64)}
	h.hub.register(sceneID, client)

	done := make(chan struct{})

	// 写协程：事件 + 心跳 ping
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer func() {
			ticker.Stop()
			_ = ws.Close()
		}()
		for {
			select {
			case payload := <-client.send:
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// 读循环只用来探测断开和回 pong
	ws.SetReadLimit(1 << 16)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	close(done)
	h.hub.unregister(sceneID, client)
}
