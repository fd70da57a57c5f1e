// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"travel-concierge-go/internal/config"
	"travel-concierge-go/internal/handler"
	"travel-concierge-go/internal/middleware"
	"travel-concierge-go/internal/repository"
	"travel-concierge-go/internal/service"
	"travel-concierge-go/pkg/database"
	"travel-concierge-go/pkg/kafka"
	"travel-concierge-go/pkg/log"
	"travel-concierge-go/pkg/relay"
	"travel-concierge-go/pkg/token"
	"travel-concierge-go/pkg/webhook"
)

func main() {
	// 1. 初始化配置
	configPath := "./configs/config.yaml"
	if p := os.Getenv("CONCIERGE_CONFIG"); p != "" {
		configPath = p
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 和 Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN, cfg.Database.MySQL.MigrateAll)
	defer database.Close()
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	producer := kafka.NewProducer(cfg.Kafka)
	defer func() {
		if err := producer.Close(); err != nil {
			log.Error("关闭 Kafka 生产者失败", err)
		}
	}()

	// 4. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(database.DB)
	tripRepo := repository.NewTripRepository(database.DB)
	sessionRepo := repository.NewSessionRepository(database.RDB)
	suggestionRepo := repository.NewSuggestionRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	relayClient := relay.NewClient(cfg.Relay.Endpoint, cfg.Relay.FunctionKey, cfg.Relay.Timeout())
	saveClient := relay.NewSaveClient(cfg.Concierge.SaveURL, cfg.Relay.Timeout())
	suggestionService := service.NewSuggestionService(suggestionRepo, tripRepo, producer)

	sessionCfg := service.ChatSessionConfig{
		Category:        cfg.Concierge.Category,
		Language:        cfg.Concierge.Language,
		DefaultTimezone: cfg.Concierge.DefaultTimezone,
	}
	registry := service.NewSessionRegistry(cfg.Concierge.SessionTTL(), func(userID, tripID string) *service.ChatSession {
		return service.NewChatSession(userID, tripID, sessionCfg, service.ChatSessionDeps{
			Store:  service.NewConversationStore(conversationRepo, sessionRepo, tripID, userID),
			Trips:  tripRepo,
			Relay:  relayClient,
			Saver:  saveClient,
			Random: rand.New(rand.NewSource(time.Now().UnixNano())),
		})
	}, sessionRepo)

	if cfg.Relay.WebhookURL == "" {
		log.Warnf("relay.webhook_url 未配置，转发端点将返回 500")
	}

	// 6. 初始化 Handler
	relayHandler := handler.NewRelayHandler(cfg.Relay.WebhookURL, webhook.NewClient(cfg.Relay.Timeout()))
	conversationHandler := handler.NewConversationHandler(registry)
	chatHandler := handler.NewChatHandler(registry, jwtManager)
	suggestionHandler := handler.NewSuggestionHandler(suggestionService)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	functions := r.Group("/functions/v1")
	functions.Use(middleware.CORS(), middleware.FunctionAuth(cfg.Relay.FunctionKey, jwtManager))
	{
		functions.POST("/concierge-relay", relayHandler.Relay)
		functions.OPTIONS("/concierge-relay", func(c *gin.Context) {})
	}

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager))
	{
		trips := apiV1.Group("/trips")
		{
			trips.POST("/suggestions", suggestionHandler.SaveSuggestion)
			trips.GET("/:tripId/suggestions", suggestionHandler.ListSuggestions)

			trips.GET("/:tripId/conversations", conversationHandler.ListConversations)
			trips.POST("/:tripId/conversations", conversationHandler.CreateConversation)
			trips.DELETE("/:tripId/conversations", conversationHandler.DeleteAllConversations)
			trips.GET("/:tripId/conversations/:id", conversationHandler.GetConversation)
			trips.PUT("/:tripId/conversations/:id", conversationHandler.UpdateConversation)
			trips.DELETE("/:tripId/conversations/:id", conversationHandler.DeleteConversation)

			trips.POST("/:tripId/concierge/messages", chatHandler.SendMessage)
			trips.GET("/:tripId/concierge/state", chatHandler.GetState)
			trips.POST("/:tripId/concierge/save", chatHandler.SaveSuggestion)
		}

		apiV1.GET("/chat/websocket-token", chatHandler.GetWebsocketToken)
	}

	// Chat 路由 (WebSocket)，浏览器无法设置请求头，token 放在路径中
	r.GET("/chat/:token", chatHandler.Handle)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 超时时间覆盖一次完整的转发调用
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Relay.Timeout()+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
