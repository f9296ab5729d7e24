// Package infra 基础设施聚合层
//
// 提供统一的基础设施初始化和依赖注入，包括：
//   - Registry：服务注册表（静态配置或 etcd）
//   - Cache：投递辅助缓存（Redis）
//   - DeadLetters：死信归档（SQLite/PostgreSQL）
//
// Redis 是可选子系统：连接失败时降级为 NoOp（不去重、不限重试），
// 进程照常启动。
package infra

import (
	"context"
	"fmt"
	"log"
	"time"

	"podium-gateway/internal/config"
	"podium-gateway/internal/shared/cache"
	cacheredis "podium-gateway/internal/shared/cache/redis"
	"podium-gateway/internal/shared/registry"
	"podium-gateway/internal/shared/storage/deadletter"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// Registry 服务注册表（进程启动时装载一次，之后只读）
	Registry *registry.Registry

	// Cache 投递辅助缓存（Redis；连接失败时为 NoOp）
	Cache cache.Cache

	// DeadLetters 死信归档
	DeadLetters *deadletter.Store
}

// Setup 按配置初始化基础设施
func Setup(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	reg, err := buildRegistry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build service registry: %w", err)
	}

	var c cache.Cache
	if store, err := cacheredis.NewStoreFromURL(cfg.RedisURL); err != nil {
		log.Printf("[infra] Redis 不可用，投递缓存降级为 NoOp: %v", err)
		c = cache.NewNoOpCache()
	} else {
		c = store
	}

	deadLetters, err := openDeadLetterStore(cfg.DeadLetter)
	if err != nil {
		c.Close()
		return nil, err
	}

	return &Infrastructure{
		Registry:    reg,
		Cache:       c,
		DeadLetters: deadLetters,
	}, nil
}

// buildRegistry 按配置来源装载服务注册表
func buildRegistry(ctx context.Context, cfg *config.Config) (*registry.Registry, error) {
	if cfg.Registry.Source == "etcd" {
		return registry.LoadFromEtcd(ctx, registry.EtcdConfig{
			Endpoints:   cfg.Registry.Etcd.Endpoints,
			Prefix:      cfg.Registry.Etcd.Prefix,
			DialTimeout: 5 * time.Second,
		})
	}
	return registry.New(cfg.Registry.Services)
}

// openDeadLetterStore 按驱动打开死信归档
func openDeadLetterStore(cfg config.DeadLetterConfig) (*deadletter.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return deadletter.OpenPostgres(cfg.DSN)
	default:
		return deadletter.OpenSQLite(cfg.Path)
	}
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var lastErr error

	if i.Cache != nil {
		if err := i.Cache.Close(); err != nil {
			lastErr = err
		}
	}

	if i.DeadLetters != nil {
		if err := i.DeadLetters.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// NewNoOpInfrastructure 创建空操作的基础设施（用于测试）
func NewNoOpInfrastructure() *Infrastructure {
	reg, _ := registry.New(map[string]string{
		"speaker":    "http://localhost:8081",
		"draft":      "http://localhost:8082",
		"rag":        "http://localhost:8083",
		"evaluation": "http://localhost:8084",
	})
	return &Infrastructure{
		Registry: reg,
		Cache:    cache.NewNoOpCache(),
	}
}
