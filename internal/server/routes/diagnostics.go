package routes

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/currency-hub/currency-hub/internal/cache"
	"github.com/currency-hub/currency-hub/internal/server"
	"github.com/currency-hub/currency-hub/internal/worker"
)

// Controller 是诊断接口需要的 worker 控制面。
type Controller interface {
	Active() *worker.Worker
	Waiting() *worker.Worker
	SkipWaiting(ctx context.Context) error
}

// Diagnostics 聚合诊断接口依赖。
type Diagnostics struct {
	Controller Controller
	Store      cache.Store
	Registry   *server.OriginRegistry
}

// RegisterDiagnosticsRoutes 暴露 /-/ 前缀下的诊断接口，供运维查看代际状态与缓存内容。
func RegisterDiagnosticsRoutes(app *fiber.App, deps Diagnostics) {
	if app == nil || deps.Controller == nil || deps.Store == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(statusPayload{
			Active:  encodeWorker(deps.Controller.Active()),
			Waiting: encodeWorker(deps.Controller.Waiting()),
			Origins: encodeOrigins(deps.Registry),
		})
	})

	app.Get("/-/stores", func(c fiber.Ctx) error {
		ctx := c.Context()
		names, err := deps.Store.Names(ctx)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "store_unavailable"})
		}
		stores := make([]storeSummary, 0, len(names))
		for _, name := range names {
			entries, err := deps.Store.Entries(ctx, name)
			if errors.Is(err, cache.ErrStoreNotFound) {
				// 两次调用之间被清理。
				continue
			}
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "store_unavailable"})
			}
			stores = append(stores, storeSummary{Name: name, Entries: len(entries), Bytes: totalBytes(entries)})
		}
		return c.JSON(fiber.Map{"stores": stores})
	})

	app.Get("/-/stores/:name", func(c fiber.Ctx) error {
		name := strings.TrimSpace(c.Params("name"))
		if err := cache.ValidateStoreName(name); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_store_name"})
		}
		entries, err := deps.Store.Entries(c.Context(), name)
		if errors.Is(err, cache.ErrStoreNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "store_not_found"})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "store_unavailable"})
		}
		return c.JSON(fiber.Map{"name": name, "entries": encodeEntries(entries)})
	})

	app.Get("/-/strategies", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"strategies": worker.Strategies()})
	})

	app.Post("/-/skip-waiting", func(c fiber.Ctx) error {
		err := deps.Controller.SkipWaiting(c.Context())
		if errors.Is(err, worker.ErrNoWaitingWorker) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_waiting_worker"})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "activation_failed"})
		}
		return c.JSON(fiber.Map{"active": encodeWorker(deps.Controller.Active())})
	})
}

type statusPayload struct {
	Active  *workerPayload  `json:"active"`
	Waiting *workerPayload  `json:"waiting"`
	Origins []originPayload `json:"origins"`
}

type workerPayload struct {
	Version      string `json:"version"`
	State        string `json:"state"`
	ShellStore   string `json:"shell_store"`
	RuntimeStore string `json:"runtime_store"`
}

type originPayload struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Upstream string `json:"upstream"`
	Shell    bool   `json:"shell"`
}

type storeSummary struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

type entryPayload struct {
	Identity    string `json:"identity"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	ModTime     string `json:"mod_time"`
	Digest      string `json:"digest,omitempty"`
}

func encodeWorker(w *worker.Worker) *workerPayload {
	if w == nil {
		return nil
	}
	shell, runtime := w.StoreNames()
	return &workerPayload{
		Version:      w.Version(),
		State:        w.State().String(),
		ShellStore:   shell,
		RuntimeStore: runtime,
	}
}

func encodeOrigins(registry *server.OriginRegistry) []originPayload {
	if registry == nil {
		return nil
	}
	routes := registry.List()
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Config.Name < routes[j].Config.Name
	})
	result := make([]originPayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, originPayload{
			Name:     route.Config.Name,
			Domain:   route.Config.Domain,
			Upstream: route.Config.Upstream,
			Shell:    route.Config.Shell,
		})
	}
	return result
}

func encodeEntries(entries []cache.Entry) []entryPayload {
	result := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		item := entryPayload{
			Identity:  entry.Locator.Identity,
			Status:    entry.Status,
			SizeBytes: entry.SizeBytes,
			ModTime:   entry.ModTime.UTC().Format(time.RFC3339),
			Digest:    entry.Digest,
		}
		if entry.Header != nil {
			item.ContentType = entry.Header.Get("Content-Type")
		}
		result = append(result, item)
	}
	return result
}

func totalBytes(entries []cache.Entry) int64 {
	var total int64
	for _, entry := range entries {
		total += entry.SizeBytes
	}
	return total
}
