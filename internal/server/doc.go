// Package server hosts the Fiber HTTP service that intercepts the converter's
// requests. Every request gets a request id; the catch-all route resolves the
// Host header to an OriginRoute and turns the Fiber request into an
// Interception carrying the upstream worker.Request, which an InterceptHandler
// then serves. Paths under /-/ bypass host resolution and are served by the
// diagnostics routes. Keep exports narrow and accept explicit dependencies.
package server
