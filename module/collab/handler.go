package collab

import (
	"net/http"
	"time"

	"CProject/module/collab/model"
	"CProject/module/collab/service"
	errs "CProject/tools/errs"
	"CProject/tools/specialerror"

	"github.com/gin-gonic/gin"
)

// Handler 把 /api/collaboration 下的路由挂到 Collab 服务上。
// 错误一律转成 {"error": "..."} 信封：参数问题 400，存储问题 500。
type Handler struct {
	svc *service.Collab
	hub *Hub
}

func NewHandler(svc *service.Collab, hub *Hub) *Handler {
	return &Handler{svc: svc, hub: hub}
}

// RegisterRoutes 挂载到 group（通常是已套好鉴权中间件的 /api/collaboration）。
func (h *Handler) RegisterRoutes(g gin.IRouter) {
	g.POST("/presence", h.PostPresence)
	g.GET("/presence", h.GetPresence)
	g.GET("/poll", h.Poll)
	g.POST("/highlight", h.PostHighlight)
	g.GET("/highlight", h.GetHighlights)
	g.DELETE("/highlight", h.DeleteHighlight)
	g.POST("/logs", h.PostLog)
	g.GET("/logs", h.GetLogs)
	g.GET("/stream", h.HandleStream)
}

func abortError(c *gin.Context, err error) {
	ce := specialerror.Classify(err)
	status := http.StatusInternalServerError
	switch ce.Code {
	case errs.ArgsErrorCode:
		status = http.StatusBadRequest
	case errs.TokenInvalidCode:
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"error": ce.Msg + appendDetail(ce.Detail)})
}

func appendDetail(detail string) string {
	if detail == "" {
		return ""
	}
	return ": " + detail
}

// ===== presence =====

type presenceReq struct {
	UserID   string         `json:"userId"`
	SceneID  string         `json:"sceneId"`
	UserInfo map[string]any `json:"userInfo"`
	Action   string         `json:"action"`
}

// PostPresence join / heartbeat / leave。action 缺省按 join 处理。
func (h *Handler) PostPresence(c *gin.Context) {
	var req presenceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errs.ErrArgs.WrapMsg("invalid json body"))
		return
	}
	if req.UserID == "" || req.SceneID == "" {
		abortError(c, errs.ErrArgs.WrapMsg("userId and sceneId are required"))
		return
	}
	action := model.PresenceAction(req.Action)
	if req.Action == "" {
		action = model.ActionJoin
	}
	if !action.Valid() {
		abortError(c, errs.ErrArgs.WrapMsg("unknown action", "action", req.Action))
		return
	}

	ts, err := h.svc.UpdatePresence(c.Request.Context(), req.SceneID, req.UserID, req.UserInfo, action)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"action":    string(action),
		"timestamp": ts.UTC().Format(time.RFC3339Nano),
	})
}

// GetPresence 场景内当前活跃用户。读失败降级为空集（service 层策略）。
func (h *Handler) GetPresence(c *gin.Context) {
	sceneID := c.Query("sceneId")
	if sceneID == "" {
		abortError(c, errs.ErrArgs.WrapMsg("sceneId is required"))
		return
	}
	users := h.svc.ActiveUsers(c.Request.Context(), sceneID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"users":   users,
		"count":   len(users),
	})
}

// Poll 轮询信封；lastPoll 仅回显用途，活跃集始终全量返回。
func (h *Handler) Poll(c *gin.Context) {
	sceneID := c.Query("sceneId")
	if sceneID == "" {
		abortError(c, errs.ErrArgs.WrapMsg("sceneId is required"))
		return
	}
	users := h.svc.ActiveUsers(c.Request.Context(), sceneID)
	c.JSON(http.StatusOK, gin.H{
		"activeUsers": users,
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
		"sceneId":     sceneID,
	})
}

// ===== highlight =====

type highlightReq struct {
	SceneID  string `json:"sceneId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	ObjectID string `json:"objectId"`
	Action   string `json:"action"`
}

func (h *Handler) PostHighlight(c *gin.Context) {
	var req highlightReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errs.ErrArgs.WrapMsg("invalid json body"))
		return
	}
	if req.SceneID == "" || req.UserID == "" || req.ObjectID == "" {
		abortError(c, errs.ErrArgs.WrapMsg("sceneId, userId, and objectId are required"))
		return
	}
	rec := &model.HighlightRecord{
		SceneID:  req.SceneID,
		UserID:   req.UserID,
		UserName: req.UserName,
		ObjectID: req.ObjectID,
		Action:   req.Action,
	}
	if err := h.svc.SetHighlight(c.Request.Context(), rec); err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) GetHighlights(c *gin.Context) {
	sceneID := c.Query("sceneId")
	if sceneID == "" {
		abortError(c, errs.ErrArgs.WrapMsg("sceneId is required"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"highlights": h.svc.Highlights(c.Request.Context(), sceneID)})
}

// DeleteHighlight 幂等：清不存在的高亮也返回成功。
func (h *Handler) DeleteHighlight(c *gin.Context) {
	sceneID := c.Query("sceneId")
	userID := c.Query("userId")
	if sceneID == "" || userID == "" {
		abortError(c, errs.ErrArgs.WrapMsg("sceneId and userId are required"))
		return
	}
	if err := h.svc.ClearHighlight(c.Request.Context(), sceneID, userID); err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ===== logs =====

type logReq struct {
	SceneID   string `json:"sceneId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	Timestamp string `json:"timestamp"` // RFC3339，可选（离线补传）
}

func (h *Handler) PostLog(c *gin.Context) {
	var req logReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errs.ErrArgs.WrapMsg("invalid json body"))
		return
	}
	if req.SceneID == "" || req.UserID == "" || req.Action == "" {
		abortError(c, errs.ErrArgs.WrapMsg("sceneId, userId, and action are required"))
		return
	}
	entry := &model.LogEntry{
		SceneID:  req.SceneID,
		UserID:   req.UserID,
		UserName: req.UserName,
		Action:   req.Action,
		Details:  req.Details,
	}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, req.Timestamp)
		if err != nil {
			abortError(c, errs.ErrArgs.WrapMsg("invalid timestamp", "timestamp", req.Timestamp))
			return
		}
		entry.Timestamp = ts
	}
	if err := h.svc.AppendLog(c.Request.Context(), entry); err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) GetLogs(c *gin.Context) {
	sceneID := c.Query("sceneId")
	if sceneID == "" {
		abortError(c, errs.ErrArgs.WrapMsg("sceneId is required"))
		return
	}
	logs, err := h.svc.Logs(c.Request.Context(), sceneID)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
