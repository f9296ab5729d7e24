// Package registry etcd 注册表来源
package registry

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdConfig etcd 注册表来源配置
type EtcdConfig struct {
	Endpoints   []string
	Prefix      string
	DialTimeout time.Duration
}

// LoadFromEtcd 启动时从 etcd 读取一次服务映射
//
// key 约定：{prefix}/services/{name} → 基地址。
// 注册表语义仍然是"启动时填充、此后只读"——不 watch 变更，
// 地址变化通过进程重启生效。
func LoadFromEtcd(ctx context.Context, cfg EtcdConfig) (*Registry, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/podium"
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	defer client.Close()

	keyPrefix := cfg.Prefix + "/services/"

	getCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	resp, err := client.Get(getCtx, keyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to read service registry from etcd: %w", err)
	}

	services := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		name := strings.TrimPrefix(string(kv.Key), keyPrefix)
		services[name] = string(kv.Value)
	}

	log.Printf("[registry] Loaded %d services from etcd %v", len(services), cfg.Endpoints)
	return New(services)
}
