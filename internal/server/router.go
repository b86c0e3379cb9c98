package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/currency-hub/currency-hub/internal/worker"
)

// Interception 是一次被网关接管的页面请求。站点查找、上游 URL 计算与转发头都在
// 路由阶段完成，下游只需把 Request 交给缓存路由并写回结果。
type Interception struct {
	ID      string
	Route   *OriginRoute
	Request *worker.Request
	Started time.Time
}

// InterceptHandler 处理已转换好的拦截请求，测试中可注入假实现。
type InterceptHandler interface {
	Handle(fiber.Ctx, *Interception) error
}

// InterceptHandlerFunc adapts a function to the InterceptHandler interface.
type InterceptHandlerFunc func(fiber.Ctx, *Interception) error

// Handle makes InterceptHandlerFunc satisfy InterceptHandler.
func (f InterceptHandlerFunc) Handle(c fiber.Ctx, in *Interception) error {
	return f(c, in)
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *OriginRegistry
	Handler    InterceptHandler
	ListenPort int
}

const contextKeyRequestID = "_currencyhub_request_id"

// NewApp 构建网关的 Fiber 应用：/-/ 下的诊断路由直接放行，其余请求按 Host 映射到
// 站点并转换为 worker.Request 后交给 Handler。
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("origin registry is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("intercept handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware)

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		started := time.Now()
		rawHost := strings.TrimSpace(getHostHeader(c))
		route, ok := opts.Registry.Lookup(rawHost)
		if !ok {
			return renderHostUnmapped(c, opts.Logger, rawHost, opts.ListenPort)
		}
		return opts.Handler.Handle(c, intercept(c, route, started))
	})

	return app, nil
}

func requestIDMiddleware(c fiber.Ctx) error {
	reqID := uuid.NewString()
	c.Locals(contextKeyRequestID, reqID)
	c.Set("X-Request-ID", reqID)
	return c.Next()
}

// intercept 把 Fiber 请求转换为面向上游的 worker.Request：URL 挂在站点 upstream 下，
// 去掉 Host 并补齐 X-Forwarded-*，非 GET/HEAD 请求复制正文。
func intercept(c fiber.Ctx, route *OriginRoute, started time.Time) *Interception {
	uri := c.Request().URI()
	target := route.Target(string(uri.Path()), string(uri.QueryString()))

	req := worker.NewRequest(c.Method(), target, forwardedHeaders(c, route))
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		req.Body = append([]byte(nil), c.Body()...)
	}
	return &Interception{
		ID:      RequestID(c),
		Route:   route,
		Request: req,
		Started: started,
	}
}

func forwardedHeaders(c fiber.Ctx, route *OriginRoute) http.Header {
	incoming := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		incoming.Add(string(key), string(value))
	})

	header := http.Header{}
	CopyHeaders(header, incoming)
	header.Del("Host")
	header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := header.Get("X-Forwarded-For"); prior != "" {
			header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			header.Set("X-Forwarded-For", ip)
		}
	}
	header.Set("X-Forwarded-Proto", c.Scheme())
	header.Set("X-Forwarded-Port", routePort(route))
	return header
}

func routePort(route *OriginRoute) string {
	if route.ListenPort <= 0 {
		return "0"
	}
	return strconv.Itoa(route.ListenPort)
}

func renderHostUnmapped(c fiber.Ctx, logger *logrus.Logger, host string, port int) error {
	fields := logrus.Fields{
		"action": "host_lookup",
		"host":   host,
		"port":   port,
	}
	logger.WithFields(fields).Warn("host unmapped")

	if host != "" {
		c.Set("X-Currency-Hub-Host", host)
	}

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "host_unmapped",
	})
}

func getHostHeader(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return string(raw)
	}
	return c.Hostname()
}

// RequestID returns the request identifier stored by the request-id middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
