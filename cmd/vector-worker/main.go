// Package main 向量生成工作器入口
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"podium-gateway/internal/config"
	"podium-gateway/internal/gateway/proxy"
	"podium-gateway/internal/shared/eventbus"
	"podium-gateway/internal/shared/eventbus/amqp"
	"podium-gateway/internal/shared/infra"
	"podium-gateway/internal/worker"
)

// defaultQueue 工作器独占队列（与网关事件流队列分开，各自确认进度）
const defaultQueue = "vector-worker.drafts"

func main() {
	cfg := config.Load()

	log.Printf("Starting Vector Worker... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	infrastructure, err := infra.Setup(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to set up infrastructure: %v", err)
	}
	defer infrastructure.Close()

	// 工作器的输入就是总线，连不上直接退出
	publisher := amqp.NewPublisher(cfg.Bus.URL, cfg.Bus.Exchange)
	if err := publisher.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect to event bus: %v", err)
	}
	defer publisher.Disconnect()
	log.Println("Connected to event bus")

	queue := defaultQueue
	if v := os.Getenv("WORKER_QUEUE"); v != "" {
		queue = v
	}

	opts := []amqp.ConsumerOption{
		// 只订阅触发事件
		amqp.WithBindings(eventbus.EventDraftIngested),
		amqp.WithDeadLetterStore(infrastructure.DeadLetters),
	}
	if cfg.Bus.Consumer.MaxAttempts > 0 {
		opts = append(opts, amqp.WithRetryPolicy(
			amqp.RetryPolicy{MaxAttempts: cfg.Bus.Consumer.MaxAttempts},
			infrastructure.Cache,
		))
	}

	consumer := amqp.NewConsumer(cfg.Bus.URL, cfg.Bus.Exchange, opts...)
	if err := consumer.Connect(ctx, queue, cfg.Bus.Consumer.PrefetchCount); err != nil {
		log.Fatalf("Failed to connect consumer: %v", err)
	}

	client := proxy.NewClient(infrastructure.Registry, cfg.Proxy.Timeout)
	vectorWorker := worker.NewVectorWorker(client, publisher, infrastructure.Cache)
	vectorWorker.Register(consumer)

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down vector worker...")
		consumer.Stop()
		cancel()
	}()

	log.Printf("Vector worker consuming queue %s", queue)
	if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Consumer error: %v", err)
	}

	fmt.Println("Vector worker stopped")
}
