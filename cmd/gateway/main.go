// Package main 网关入口
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"podium-gateway/internal/config"
	"podium-gateway/internal/gateway/proxy"
	"podium-gateway/internal/gateway/server"
	"podium-gateway/internal/shared/eventbus"
	"podium-gateway/internal/shared/eventbus/amqp"
	"podium-gateway/internal/shared/infra"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换配置文件）
	cfg := config.Load()

	log.Printf("Starting Gateway... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化基础设施（注册表、Redis 缓存、死信归档）
	infrastructure, err := infra.Setup(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to set up infrastructure: %v", err)
	}
	defer infrastructure.Close()
	log.Printf("Registry loaded: %v", infrastructure.Registry.Services())

	// 事件总线是可选子系统：连接失败时网关照常提供 HTTP 能力
	var publisher eventbus.Publisher = amqp.NewPublisher(cfg.Bus.URL, cfg.Bus.Exchange)
	if err := publisher.Connect(ctx); err != nil {
		log.Printf("Event bus unavailable, continuing without eventing: %v", err)
		publisher = eventbus.NewNoOpPublisher()
	} else {
		log.Println("Connected to event bus")
		defer publisher.Disconnect()
	}

	client := proxy.NewClient(infrastructure.Registry, cfg.Proxy.Timeout)
	h := server.NewHandler(client, infrastructure.DeadLetters, publisher)

	// 消费总线事件推送到 WebSocket 客户端
	startEventConsumer(ctx, cfg, h, infrastructure)

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down gateway...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Gateway listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Gateway stopped")
}

// startEventConsumer 启动总线消费，把信封交给 WebSocket 事件网关广播
//
// 总线不可用时跳过：实时推送是可选能力。
func startEventConsumer(ctx context.Context, cfg *config.Config, h *server.Handler, infrastructure *infra.Infrastructure) {
	opts := []amqp.ConsumerOption{
		amqp.WithBindings(cfg.Bus.Consumer.Bindings...),
		amqp.WithDeadLetterStore(infrastructure.DeadLetters),
	}
	if cfg.Bus.Consumer.MaxAttempts > 0 {
		opts = append(opts, amqp.WithRetryPolicy(
			amqp.RetryPolicy{MaxAttempts: cfg.Bus.Consumer.MaxAttempts},
			infrastructure.Cache,
		))
	}

	consumer := amqp.NewConsumer(cfg.Bus.URL, cfg.Bus.Exchange, opts...)
	if err := consumer.Connect(ctx, cfg.Bus.Consumer.Queue, cfg.Bus.Consumer.PrefetchCount); err != nil {
		log.Printf("Event consumer unavailable, live event stream disabled: %v", err)
		return
	}

	gateway := h.EventGateway()
	for _, eventType := range []string{
		eventbus.EventSpeakerCreated,
		eventbus.EventDraftIngested,
		eventbus.EventDraftGenerated,
		eventbus.EventVectorsGenerated,
		eventbus.EventEvaluationCompleted,
	} {
		consumer.RegisterHandler(eventType, gateway.HandleEnvelope)
	}

	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Event consumer stopped: %v", err)
		}
	}()
	log.Printf("Consuming events from queue %s", cfg.Bus.Consumer.Queue)
}
