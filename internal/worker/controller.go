package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/currency-hub/currency-hub/internal/logging"
)

// Controller 持有当前 active 与 waiting 代际，负责安装、接管与无 worker 时的直通。
type Controller struct {
	fetcher Fetcher
	logger  *logrus.Logger

	// registerMu 串行化 Register，避免两个代际交错清理彼此的存储。
	registerMu sync.Mutex
	mu         sync.Mutex
	active     atomic.Pointer[Worker]
	waiting    *Worker
	workers    []*Worker
}

// NewController 构造控制器；fetcher 用于没有 active worker 时的直通请求。
func NewController(fetcher Fetcher, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{fetcher: fetcher, logger: logger}
}

// Register 安装 w；skipWaiting 或当前没有 active worker 时立即激活，否则进入等待。
// 安装失败时返回 ErrInstallFailed，已 active 的代际不受影响。
func (c *Controller) Register(ctx context.Context, w *Worker, skipWaiting bool) error {
	if w == nil {
		return errors.New("worker required")
	}
	c.registerMu.Lock()
	defer c.registerMu.Unlock()

	if err := w.Install(ctx); err != nil {
		return err
	}
	return c.promote(ctx, w, skipWaiting)
}

// Adopt 与 Register 相同，但以 Restore 代替 Install：复用已有的外壳存储，
// 用于上游不可达时的离线启动。
func (c *Controller) Adopt(ctx context.Context, w *Worker, skipWaiting bool) error {
	if w == nil {
		return errors.New("worker required")
	}
	c.registerMu.Lock()
	defer c.registerMu.Unlock()

	if err := w.Restore(ctx); err != nil {
		return err
	}
	return c.promote(ctx, w, skipWaiting)
}

func (c *Controller) promote(ctx context.Context, w *Worker, skipWaiting bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workers = append(c.workers, w)

	if skipWaiting || c.active.Load() == nil {
		return c.activateLocked(ctx, w)
	}
	if c.waiting != nil {
		c.waiting.discard()
	}
	c.waiting = w
	c.logger.WithFields(logging.WorkerFields("wait", w.Version(), w.State().String())).Info("worker installed, waiting for skip-waiting")
	return nil
}

// SkipWaiting 激活等待中的代际；没有等待代际时返回 ErrNoWaitingWorker。
func (c *Controller) SkipWaiting(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiting == nil {
		return ErrNoWaitingWorker
	}
	return c.activateLocked(ctx, c.waiting)
}

func (c *Controller) activateLocked(ctx context.Context, w *Worker) error {
	if err := w.Activate(ctx); err != nil {
		return fmt.Errorf("activate %s: %w", w.Version(), err)
	}
	if c.waiting != nil && c.waiting != w {
		c.waiting.discard()
	}
	c.waiting = nil
	if previous := c.active.Swap(w); previous != nil && previous != w {
		previous.supersede()
	}
	return nil
}

// Active 返回当前 active 代际，可能为 nil。
func (c *Controller) Active() *Worker {
	return c.active.Load()
}

// Waiting 返回等待中的代际，可能为 nil。
func (c *Controller) Waiting() *Worker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

// Serve 将请求交给 active 代际；接管瞬间读到已被取代的代际时重试一次。
// 没有 active 代际时请求直通网络。
func (c *Controller) Serve(ctx context.Context, req *Request) (*Result, error) {
	for attempt := 0; attempt < 2; attempt++ {
		w := c.active.Load()
		if w == nil {
			break
		}
		result, err := w.Handle(ctx, req)
		if errors.Is(err, ErrNotActive) {
			continue
		}
		return result, err
	}
	return c.passthrough(ctx, req)
}

func (c *Controller) passthrough(ctx context.Context, req *Request) (*Result, error) {
	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", ErrNetwork)
	}
	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return &Result{Response: resp, Class: ClassOther, Source: SourcePassthrough}, nil
}

// Shutdown 等待所有代际的后台刷新结束，ctx 到期时返回其错误。
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	workers := append([]*Worker(nil), c.workers...)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, w := range workers {
			w.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
