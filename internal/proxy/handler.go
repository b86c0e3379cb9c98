package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/currency-hub/currency-hub/internal/logging"
	"github.com/currency-hub/currency-hub/internal/server"
	"github.com/currency-hub/currency-hub/internal/worker"
)

// 响应头：标记来源、分类与处理该请求的 worker 版本。
const (
	HeaderSource  = "X-Currency-Hub-Source"
	HeaderClass   = "X-Currency-Hub-Class"
	HeaderVersion = "X-Currency-Hub-Version"
)

// Router 是缓存路由的入口，通常由 *worker.Controller 实现。
type Router interface {
	Serve(ctx context.Context, req *worker.Request) (*worker.Result, error)
}

// Handler 将 Fiber 请求转换为 worker.Request，交给缓存路由，再把结果写回客户端。
type Handler struct {
	router Router
	logger *logrus.Logger
}

// NewHandler constructs a proxy handler around the cache router.
func NewHandler(router Router, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		router: router,
		logger: logger,
	}
}

// Handle 将拦截请求交给缓存路由并输出响应，任何阶段出错都会输出结构化日志。
func (h *Handler) Handle(c fiber.Ctx, in *server.Interception) error {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := h.router.Serve(ctx, in.Request)
	if err != nil {
		h.logResult(in, nil, err)
		if errors.Is(err, worker.ErrNetwork) {
			return h.writeError(c, fiber.StatusBadGateway, "network_error", in.ID)
		}
		return h.writeError(c, fiber.StatusInternalServerError, "internal_error", in.ID)
	}

	h.writeResult(c, result, in.ID)
	h.logResult(in, result, nil)
	return nil
}

func (h *Handler) writeResult(c fiber.Ctx, result *worker.Result, requestID string) {
	resp := result.Response
	copyResponseHeaders(c, resp.Header)
	c.Set(HeaderSource, string(result.Source))
	c.Set(HeaderClass, result.Class.String())
	if result.Version != "" {
		c.Set(HeaderVersion, result.Version)
	}
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.Status)
	c.Response().SetBodyRaw(resp.Body)
}

func (h *Handler) writeError(c fiber.Ctx, status int, code, requestID string) error {
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(in *server.Interception, result *worker.Result, err error) {
	class, source, version := "", "", ""
	status := 0
	if result != nil {
		class = result.Class.String()
		source = string(result.Source)
		version = result.Version
		status = result.Response.Status
	}
	fields := logging.RequestFields(in.Route.Config.Name, in.Route.Config.Domain, class, source, version)
	fields["action"] = "proxy"
	fields["method"] = in.Request.Method
	fields["upstream"] = in.Request.URL.String()
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(in.Started).Milliseconds()
	if in.ID != "" {
		fields["request_id"] = in.ID
	}
	if result != nil && result.Revalidating {
		fields["revalidating"] = true
	}

	entry := h.logger.WithFields(fields)
	if err != nil {
		entry.WithError(err).Warn("proxy_failed")
		return
	}
	entry.Info("proxy_complete")
}

// copyResponseHeaders 跳过 hop-by-hop 与 Content-Length，正文长度由 fasthttp 重新计算。
func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || http.CanonicalHeaderKey(key) == "Content-Length" {
			continue
		}
		for i, value := range values {
			if i == 0 {
				c.Set(key, value)
				continue
			}
			c.Response().Header.Add(key, value)
		}
	}
}
