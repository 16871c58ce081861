package server

import (
	"net/http"

	"github.com/asima2006/Soinech-Chat-App/internal/auth"
	"github.com/asima2006/Soinech-Chat-App/internal/config"
	"github.com/asima2006/Soinech-Chat-App/internal/delivery"
	"github.com/asima2006/Soinech-Chat-App/internal/metrics"
	"github.com/asima2006/Soinech-Chat-App/internal/mw"
	"github.com/asima2006/Soinech-Chat-App/internal/presence"
	"github.com/asima2006/Soinech-Chat-App/internal/service"
	"github.com/asima2006/Soinech-Chat-App/internal/store"
	"github.com/asima2006/Soinech-Chat-App/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
// 在线状态表与房间索引随进程创建，重启即清空。
// limiter 由调用方持有，以便停服时回收。
func SetupRouter(cfg config.Config, db *gorm.DB, limiter *mw.Limiter) *gin.Engine {
	gw := store.NewGormStore(db, cfg.StoreTimeout)
	hub := ws.NewHub()
	svc := delivery.NewService(presence.NewRegistry(), gw, hub)

	chatSvc := service.NewChatService(db, hub)
	h := NewHandler(
		service.NewUserService(db, cfg),
		chatSvc,
		service.NewMessageService(gw, chatSvc, cfg.HistoryLimit),
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 控制单个 IP+路由的速率。
	r.Use(limiter.Middleware())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg.JWTSecret))
	authed.POST("/chats", h.CreateChat)
	authed.GET("/chats", h.ListChats)
	authed.POST("/chats/:id/members", h.AddMember)
	authed.GET("/chats/:id/messages", h.ListMessages)

	r.GET("/ws", ws.Serve(svc, cfg.JWTSecret))
	return r
}
