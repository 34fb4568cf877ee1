package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/lifequest/LifeQuest-Server/config"
	"github.com/lifequest/LifeQuest-Server/internal/insight"
	"github.com/lifequest/LifeQuest-Server/internal/session"
	"github.com/lifequest/LifeQuest-Server/internal/store"
)

// Gateway API网关
type Gateway struct {
	config     *config.Config
	httpServer *http.Server
	sessions   *session.Manager
	hub        *WSHub
	generator  *insight.Generator
	isRunning  bool
}

// NewGateway 创建新的网关
// profileStore 为 nil 时所有会话以离线模式运行；generator 为 nil 时洞察接口降级
func NewGateway(cfg *config.Config, profileStore store.ProfileStore, generator *insight.Generator) *Gateway {
	authHandler := NewAuthHandler()
	hub := NewWSHub(authHandler)

	// 会话事件经推送中心送达前端
	sessions := session.NewManager(profileStore, session.Hooks{
		OnNotification: hub.PushNotification,
		OnProfile:      hub.PushProfile,
	})
	hub.SetSessionManager(sessions)

	return &Gateway{
		config:    cfg,
		sessions:  sessions,
		hub:       hub,
		generator: generator,
	}
}

// Start 启动网关
func (g *Gateway) Start() error {
	if g.isRunning {
		return fmt.Errorf("网关已经在运行")
	}

	// 启动会话管理
	g.sessions.Start()

	// 初始化HTTP服务器
	g.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", g.config.Server.GatewayPort),
		Handler: g.createHandler(),
	}

	// 启动HTTP服务器
	go func() {
		log.Printf("API网关启动，监听端口: %d", g.config.Server.GatewayPort)
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP服务器错误: %v", err)
		}
	}()

	g.isRunning = true
	return nil
}

// Stop 停止网关
func (g *Gateway) Stop() error {
	if !g.isRunning {
		return nil
	}

	// 关闭所有会话
	g.sessions.Stop()

	// 关闭HTTP服务器
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := g.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP服务器关闭错误: %w", err)
	}

	g.isRunning = false
	log.Println("API网关已停止")
	return nil
}

// createHandler 创建HTTP处理器
func (g *Gateway) createHandler() http.Handler {
	mux := http.NewServeMux()

	// 创建各种处理器
	authHandler := g.hub.auth
	profileHandler := NewProfileHandler(g.sessions, authHandler, g.generator)

	// 注册认证相关路由
	authHandler.RegisterHandlers(mux)

	// 注册档案相关路由
	profileHandler.RegisterHandlers(mux)

	// 注册实时推送路由
	g.hub.RegisterHandlers(mux)

	// 健康检查端点
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// 应用中间件
	handler := g.applyMiddleware(mux)

	return handler
}

// applyMiddleware 应用中间件
func (g *Gateway) applyMiddleware(handler http.Handler) http.Handler {
	// 创建中间件
	loggingMiddleware := NewLoggingMiddleware()
	securityMiddleware := NewSecurityMiddleware()
	corsMiddleware := NewCORSMiddleware()
	rateLimiter := NewRateLimiter(60, 10) // 每分钟60次请求，突发10次

	// 按顺序应用中间件（从外到内）
	handler = loggingMiddleware.Middleware(handler)
	handler = securityMiddleware.Middleware(handler)
	handler = corsMiddleware.Middleware(handler)
	handler = rateLimiter.Middleware(handler)

	return handler
}
