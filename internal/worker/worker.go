package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/currency-hub/currency-hub/internal/cache"
	"github.com/currency-hub/currency-hub/internal/config"
	"github.com/currency-hub/currency-hub/internal/logging"
)

// State 是 worker 的生命周期状态。
type State int32

const (
	StateNew State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActive
	StateSuperseded
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateSuperseded:
		return "superseded"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

const (
	defaultInstallConcurrency    = 4
	defaultRevalidateConcurrency = 32
)

// Options 描述一个部署代际所需的全部参数。
type Options struct {
	Version      string
	ShellStore   string
	RuntimeStore string
	// ShellOrigin 用于解析清单中的相对路径与兜底文档。
	ShellOrigin           *url.URL
	Manifest              []string
	RateAPIHosts          []string
	ShellExtensions       []string
	FallbackDocument      string
	MaxEntrySize          int64
	InstallConcurrency    int
	RevalidateConcurrency int
}

// OptionsFromConfig 将已校验的配置转换为 worker 参数。
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	if cfg == nil {
		return Options{}, errors.New("config required")
	}
	shell, ok := cfg.ShellOrigin()
	if !ok {
		return Options{}, errors.New("config has no shell origin")
	}
	origin, err := url.Parse(shell.Upstream)
	if err != nil {
		return Options{}, fmt.Errorf("parse shell upstream: %w", err)
	}
	return Options{
		Version:               cfg.Worker.Version,
		ShellStore:            cfg.Worker.ShellStoreName(),
		RuntimeStore:          cfg.Worker.RuntimeStoreName(),
		ShellOrigin:           origin,
		Manifest:              append([]string(nil), cfg.Worker.Manifest...),
		RateAPIHosts:          append([]string(nil), cfg.Worker.RateAPIHosts...),
		ShellExtensions:       append([]string(nil), cfg.Worker.ShellExtensions...),
		FallbackDocument:      cfg.Worker.FallbackDocument,
		MaxEntrySize:          cfg.Global.MaxEntrySize,
		InstallConcurrency:    cfg.Global.InstallConcurrency,
		RevalidateConcurrency: cfg.Global.RevalidateConcurrency,
	}, nil
}

// Worker 是一个部署代际的缓存路由。存储句柄由外部注入，便于以内存存储测试。
type Worker struct {
	opts       Options
	store      cache.Store
	writer     cache.Writer
	fetcher    Fetcher
	logger     *logrus.Logger
	classifier Classifier
	fallback   string

	state atomic.Int32

	// revalidateSlots 限制后台刷新并发，满载时跳过而非排队。
	revalidateSlots chan struct{}
	background      sync.WaitGroup
}

// New 构造处于 new 状态的 worker。
func New(opts Options, store cache.Store, fetcher Fetcher, logger *logrus.Logger) (*Worker, error) {
	if store == nil {
		return nil, errors.New("cache store required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher required")
	}
	if opts.ShellOrigin == nil || !opts.ShellOrigin.IsAbs() {
		return nil, errors.New("absolute shell origin required")
	}
	if opts.Version == "" {
		return nil, errors.New("version required")
	}
	for _, name := range []string{opts.ShellStore, opts.RuntimeStore} {
		if err := cache.ValidateStoreName(name); err != nil {
			return nil, err
		}
	}
	if opts.ShellStore == opts.RuntimeStore {
		return nil, errors.New("shell and runtime stores must differ")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.InstallConcurrency <= 0 {
		opts.InstallConcurrency = defaultInstallConcurrency
	}
	if opts.RevalidateConcurrency <= 0 {
		opts.RevalidateConcurrency = defaultRevalidateConcurrency
	}
	if opts.FallbackDocument == "" {
		opts.FallbackDocument = "/index.html"
	}

	fallbackURL, err := resolveEntry(opts.ShellOrigin, opts.FallbackDocument)
	if err != nil {
		return nil, fmt.Errorf("resolve fallback document: %w", err)
	}

	return &Worker{
		opts:            opts,
		store:           store,
		writer:          cache.NewWriter(store, opts.MaxEntrySize),
		fetcher:         fetcher,
		logger:          logger,
		classifier:      NewClassifier(opts.RateAPIHosts, opts.ShellOrigin, opts.ShellExtensions),
		fallback:        cache.Identity("GET", fallbackURL.String()),
		revalidateSlots: make(chan struct{}, opts.RevalidateConcurrency),
	}, nil
}

// Version 返回该代际的版本号。
func (w *Worker) Version() string {
	return w.opts.Version
}

// State 返回当前生命周期状态。
func (w *Worker) State() State {
	return State(w.state.Load())
}

// StoreNames 返回该代际使用的外壳与运行时存储名。
func (w *Worker) StoreNames() (shell, runtime string) {
	return w.opts.ShellStore, w.opts.RuntimeStore
}

// Classifier 返回该代际的分类器。
func (w *Worker) Classifier() Classifier {
	return w.classifier
}

// Install 并发获取清单中的全部条目，全部 2xx 后才写入外壳存储，任何一步失败都不会留下半成品。
func (w *Worker) Install(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateNew), int32(StateInstalling)) {
		return fmt.Errorf("%w: install from %s", ErrInvalidTransition, w.State())
	}
	w.log("install", logrus.InfoLevel, logrus.Fields{"entries": len(w.opts.Manifest)}, "precache started")

	responses, err := w.fetchManifest(ctx)
	if err == nil {
		err = w.commitManifest(ctx, responses)
	}
	if err != nil {
		w.state.Store(int32(StateRedundant))
		w.log("install", logrus.WarnLevel, logrus.Fields{"error": err.Error()}, "precache failed")
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	w.state.Store(int32(StateInstalled))
	w.log("install", logrus.InfoLevel, logrus.Fields{"store": w.opts.ShellStore}, "precache completed")
	return nil
}

type manifestResponse struct {
	request  *Request
	response *Response
}

func (w *Worker) fetchManifest(ctx context.Context) ([]manifestResponse, error) {
	responses := make([]manifestResponse, len(w.opts.Manifest))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.opts.InstallConcurrency)

	// 先解析全部条目，任何一项非法都不会发出请求。
	requests := make([]*Request, len(w.opts.Manifest))
	for i, entry := range w.opts.Manifest {
		target, err := resolveEntry(w.opts.ShellOrigin, entry)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %q: %w", entry, err)
		}
		requests[i] = NewRequest("GET", target, nil)
	}

	for i, req := range requests {
		group.Go(func() error {
			resp, err := w.fetcher.Fetch(groupCtx, req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", req.URL, err)
			}
			if !resp.Successful() {
				return fmt.Errorf("fetch %s: unexpected status %d", req.URL, resp.Status)
			}
			responses[i] = manifestResponse{request: req, response: resp}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

func (w *Worker) commitManifest(ctx context.Context, responses []manifestResponse) error {
	existed, err := w.store.Has(ctx, w.opts.ShellStore)
	if err != nil {
		return err
	}
	if err := w.store.Open(ctx, w.opts.ShellStore); err != nil {
		return err
	}
	for _, item := range responses {
		_, err := w.store.Put(ctx, w.locator(StoreShell, item.request), bytesReader(item.response.Body), cache.PutOptions{
			Status: item.response.Status,
			Header: item.response.Header,
		})
		if err != nil {
			if !existed {
				if dropErr := w.store.Drop(context.WithoutCancel(ctx), w.opts.ShellStore); dropErr != nil {
					err = errors.Join(err, dropErr)
				}
			}
			return fmt.Errorf("write %s: %w", item.request.Identity(), err)
		}
	}
	return nil
}

// Restore 在无法联网安装时复用磁盘上已有的同版本外壳存储：存储存在且清单条目齐全时
// 直接进入 installed 状态，不发出任何网络请求。
func (w *Worker) Restore(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateNew), int32(StateInstalling)) {
		return fmt.Errorf("%w: restore from %s", ErrInvalidTransition, w.State())
	}
	if err := w.verifyShellStore(ctx); err != nil {
		w.state.Store(int32(StateRedundant))
		w.log("restore", logrus.WarnLevel, logrus.Fields{"store": w.opts.ShellStore, "error": err.Error()}, "shell store not restorable")
		return fmt.Errorf("%w: %w", ErrRestoreFailed, err)
	}
	w.state.Store(int32(StateInstalled))
	w.log("restore", logrus.InfoLevel, logrus.Fields{"store": w.opts.ShellStore}, "shell store restored")
	return nil
}

func (w *Worker) verifyShellStore(ctx context.Context) error {
	ok, err := w.store.Has(ctx, w.opts.ShellStore)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("store %s missing", w.opts.ShellStore)
	}
	for _, entry := range w.opts.Manifest {
		target, err := resolveEntry(w.opts.ShellOrigin, entry)
		if err != nil {
			return fmt.Errorf("manifest entry %q: %w", entry, err)
		}
		locator := cache.Locator{Store: w.opts.ShellStore, Identity: cache.Identity("GET", target.String())}
		result, err := w.store.Get(ctx, locator)
		if err != nil {
			return fmt.Errorf("entry %s: %w", locator.Identity, err)
		}
		result.Reader.Close()
	}
	return nil
}

// Activate 清理所有不属于当前代际的存储，随后进入 active 状态。清理失败只记录日志。
func (w *Worker) Activate(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateInstalled), int32(StateActivating)) {
		if w.State() == StateActive {
			return nil
		}
		return fmt.Errorf("%w: activate from %s", ErrNotInstalled, w.State())
	}

	names, err := w.store.Names(ctx)
	if err != nil {
		w.log("prune", logrus.WarnLevel, logrus.Fields{"error": err.Error()}, "list stores failed")
	}
	var pruned []string
	for _, name := range names {
		if name == w.opts.ShellStore || name == w.opts.RuntimeStore {
			continue
		}
		if err := w.store.Drop(ctx, name); err != nil {
			w.log("prune", logrus.WarnLevel, logrus.Fields{"store": name, "error": err.Error()}, "drop store failed")
			continue
		}
		pruned = append(pruned, name)
	}

	w.state.Store(int32(StateActive))
	w.log("activate", logrus.InfoLevel, logrus.Fields{"pruned": pruned}, "worker activated")
	return nil
}

// supersede 在新代际接管后调用，已在途的请求仍会完成。
func (w *Worker) supersede() {
	if w.state.CompareAndSwap(int32(StateActive), int32(StateSuperseded)) {
		w.log("supersede", logrus.InfoLevel, nil, "worker superseded")
	}
}

// discard 将未激活的等待代际标记为 redundant。
func (w *Worker) discard() {
	if w.state.CompareAndSwap(int32(StateInstalled), int32(StateRedundant)) {
		w.log("discard", logrus.InfoLevel, nil, "waiting worker replaced")
	}
}

// Wait 等待所有后台刷新结束。
func (w *Worker) Wait() {
	w.background.Wait()
}

func (w *Worker) storeName(role StoreRole) string {
	if role == StoreShell {
		return w.opts.ShellStore
	}
	return w.opts.RuntimeStore
}

func (w *Worker) locator(role StoreRole, req *Request) cache.Locator {
	return cache.Locator{Store: w.storeName(role), Identity: req.Identity()}
}

func (w *Worker) log(action string, level logrus.Level, extra logrus.Fields, msg string) {
	fields := logging.WorkerFields(action, w.opts.Version, w.State().String())
	for k, v := range extra {
		fields[k] = v
	}
	w.logger.WithFields(fields).Log(level, msg)
}
