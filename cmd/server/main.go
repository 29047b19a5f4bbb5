// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"chat-relay-go/internal/config"
	"chat-relay-go/internal/handler"
	"chat-relay-go/internal/service"
	"chat-relay-go/pkg/kafka"
	"chat-relay-go/pkg/llm"
	"chat-relay-go/pkg/log"
	"chat-relay-go/pkg/session"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML config file")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化存储
	repo, closeRepo, err := newConversationRepository(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("failed to initialize conversation storage", err)
	}
	defer closeRepo()
	log.Infow("conversation storage ready", "driver", cfg.Storage.Driver)

	// 4. 初始化推理会话与凭证刷新
	provider := session.NewProvider(newClientFactory(cfg.LLM))
	refresher := session.NewCommandRefresher(cfg.Credentials.RefreshCommand, cfg.Credentials.RefreshTimeout)
	guard := session.NewGuard(provider, refresher, cfg.Credentials.MaxAttempts)

	// 5. 初始化事件发布
	var events service.EventPublisher = service.NopPublisher{}
	if cfg.Kafka.Brokers != "" {
		publisher := kafka.NewPublisher(cfg.Kafka)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Errorf("关闭 Kafka 生产者失败: %v", err)
			}
		}()
		events = publisher
	}

	// 6. 初始化 Service (依赖注入)
	conversationService := service.NewConversationService(repo, guard.Refresh, cfg.Credentials.MaxAttempts)
	chatService := service.NewChatService(guard, llm.NewInvoker(cfg.LLM), conversationService, events, cfg.LLM.RequestTimeout)

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(
		handler.NewConversationHandler(chatService, conversationService, cfg.Chat.Stream),
		handler.NewChatHandler(chatService),
	)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	<-ctx.Done()
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

func defaultConfigPath() string {
	if p := os.Getenv(config.EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	return "./configs/config.yaml"
}
