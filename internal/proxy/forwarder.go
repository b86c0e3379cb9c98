package proxy

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/currency-hub/currency-hub/internal/logging"
	"github.com/currency-hub/currency-hub/internal/server"
)

// Forwarder 包装实际的 InterceptHandler，将 handler panic 转换为结构化的 500 响应。
type Forwarder struct {
	handler server.InterceptHandler
	logger  *logrus.Logger
}

// NewForwarder 创建 Forwarder；handler 为空时所有请求返回 handler_missing。
func NewForwarder(handler server.InterceptHandler, logger *logrus.Logger) *Forwarder {
	return &Forwarder{
		handler: handler,
		logger:  logger,
	}
}

// Handle 实现 server.InterceptHandler。
func (f *Forwarder) Handle(c fiber.Ctx, in *server.Interception) error {
	if f.handler == nil {
		return f.respondMissingHandler(c, in.Route, in.ID)
	}
	return f.invokeHandler(c, in)
}

func (f *Forwarder) respondMissingHandler(c fiber.Ctx, route *server.OriginRoute, requestID string) error {
	f.logHandlerError(route, "handler_missing", nil, requestID)
	setRequestIDHeader(c, requestID)
	return c.Status(fiber.StatusInternalServerError).
		JSON(fiber.Map{"error": "handler_missing"})
}

func (f *Forwarder) invokeHandler(c fiber.Ctx, in *server.Interception) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = f.respondHandlerPanic(c, in.Route, r, in.ID)
		}
	}()
	return f.handler.Handle(c, in)
}

func (f *Forwarder) respondHandlerPanic(c fiber.Ctx, route *server.OriginRoute, recovered interface{}, requestID string) error {
	f.logHandlerError(route, "handler_panic", fmt.Errorf("panic: %v", recovered), requestID)
	// 丢弃 panic 前可能已写入的部分响应。
	c.Response().Reset()
	setRequestIDHeader(c, requestID)
	return c.Status(fiber.StatusInternalServerError).
		JSON(fiber.Map{"error": "handler_panic"})
}

func setRequestIDHeader(c fiber.Ctx, requestID string) {
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
}

func (f *Forwarder) logHandlerError(route *server.OriginRoute, code string, err error, requestID string) {
	if f.logger == nil {
		return
	}
	fields := routeFields(route, requestID)
	fields["action"] = "proxy"
	fields["error"] = code
	if err != nil {
		f.logger.WithFields(fields).Error(err.Error())
		return
	}
	f.logger.WithFields(fields).Error("proxy handler unavailable")
}

func routeFields(route *server.OriginRoute, requestID string) logrus.Fields {
	var fields logrus.Fields
	if route == nil {
		fields = logging.RequestFields("", "", "", "", "")
	} else {
		fields = logging.RequestFields(route.Config.Name, route.Config.Domain, "", "", "")
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}
