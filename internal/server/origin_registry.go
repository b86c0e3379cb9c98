package server

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/currency-hub/currency-hub/internal/config"
	"github.com/currency-hub/currency-hub/internal/worker"
)

// OriginRoute 将 Origin 配置与解析后的上游地址聚合在一起，供路由/代理层直接复用。
type OriginRoute struct {
	// Config 是 config.toml 中声明的 Origin 字段副本，避免外部修改。
	Config config.OriginConfig
	// ListenPort 记录当前监听端口，用于 X-Forwarded-Port。
	ListenPort int
	// UpstreamURL 在构造 Registry 时提前解析完成。
	UpstreamURL *url.URL
}

// Target 将本地请求路径与查询串映射为上游绝对 URL，保留上游地址自带的路径前缀。
// 与预缓存清单共用 worker.JoinOrigin，保证两边得到同一个缓存 identity。
func (r *OriginRoute) Target(rawPath, rawQuery string) *url.URL {
	return worker.JoinOrigin(r.UpstreamURL, rawPath, rawQuery)
}

// OriginRegistry 提供 Host/Host:port 到 OriginRoute 的查询能力，所有 Origin 共享同一个监听端口。
type OriginRegistry struct {
	routes  map[string]*OriginRoute
	ordered []*OriginRoute
	shell   *OriginRoute
}

// NewOriginRegistry 根据配置构建 Host 映射。调用方应在启动阶段创建一次并复用。
func NewOriginRegistry(cfg *config.Config) (*OriginRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &OriginRegistry{
		routes: make(map[string]*OriginRoute, len(cfg.Origins)),
	}

	for _, origin := range cfg.Origins {
		normalizedHost := normalizeDomain(origin.Domain)
		if normalizedHost == "" {
			return nil, fmt.Errorf("invalid domain for origin %s", origin.Name)
		}
		if _, exists := registry.routes[normalizedHost]; exists {
			return nil, fmt.Errorf("duplicate domain mapping detected for %s", normalizedHost)
		}

		upstreamURL, err := url.Parse(origin.Upstream)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream for origin %s: %w", origin.Name, err)
		}

		route := &OriginRoute{
			Config:      origin,
			ListenPort:  cfg.Global.ListenPort,
			UpstreamURL: upstreamURL,
		}
		registry.routes[normalizedHost] = route
		registry.ordered = append(registry.ordered, route)
		if origin.Shell {
			registry.shell = route
		}
	}

	return registry, nil
}

// Lookup 根据 Host 或 Host:port 查找 OriginRoute。
func (r *OriginRegistry) Lookup(host string) (*OriginRoute, bool) {
	if r == nil {
		return nil, false
	}

	normalizedHost, _ := normalizeHost(host)
	if normalizedHost == "" {
		return nil, false
	}

	route, ok := r.routes[normalizedHost]
	return route, ok
}

// Shell 返回承载应用外壳的 OriginRoute。
func (r *OriginRegistry) Shell() (*OriginRoute, bool) {
	if r == nil || r.shell == nil {
		return nil, false
	}
	return r.shell, true
}

// List 返回当前注册的 OriginRoute 列表（按配置定义的顺序），用于 /-/status 输出。
func (r *OriginRegistry) List() []OriginRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]OriginRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

func normalizeDomain(domain string) string {
	host, _ := normalizeHost(domain)
	return host
}

func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsedPort, err := strconv.Atoi(p); err == nil {
				port = parsedPort
			}
		} else if idx := strings.LastIndex(raw, ":"); idx > -1 && strings.Count(raw[idx+1:], ":") == 0 {
			if parsedPort, err := strconv.Atoi(raw[idx+1:]); err == nil {
				host = raw[:idx]
				port = parsedPort
			}
		}
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port
}
