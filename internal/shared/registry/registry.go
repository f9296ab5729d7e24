// Package registry 服务注册表
//
// 逻辑服务名（speaker/draft/rag/evaluation）到后端基地址的静态映射。
// 进程启动时从配置或 etcd 填充一次，此后只读；不做动态服务发现。
package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Registry 服务注册表（构造后只读，可安全并发读取）
type Registry struct {
	services map[string]string
}

// New 从静态映射创建注册表
//
// 基地址尾部斜杠会被去除，保证路径拼接形态一致。
func New(services map[string]string) (*Registry, error) {
	if len(services) == 0 {
		return nil, fmt.Errorf("service registry is empty")
	}

	normalized := make(map[string]string, len(services))
	for name, baseURL := range services {
		if name == "" || baseURL == "" {
			return nil, fmt.Errorf("invalid registry entry %q -> %q", name, baseURL)
		}
		normalized[name] = strings.TrimRight(baseURL, "/")
	}
	return &Registry{services: normalized}, nil
}

// Resolve 按逻辑名解析基地址，未知服务名报错
func (r *Registry) Resolve(name string) (string, error) {
	baseURL, ok := r.services[name]
	if !ok {
		return "", fmt.Errorf("unknown service %q", name)
	}
	return baseURL, nil
}

// Has 判断服务是否已注册
func (r *Registry) Has(name string) bool {
	_, ok := r.services[name]
	return ok
}

// Services 返回已注册的服务名（排序后），用于健康输出
func (r *Registry) Services() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
