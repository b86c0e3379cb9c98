package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/currency-hub/currency-hub/internal/cache"
)

// Handle 对请求分类并按策略表执行。非 GET 请求直通网络，不读也不写缓存。
func (w *Worker) Handle(ctx context.Context, req *Request) (*Result, error) {
	if w.State() != StateActive {
		return nil, ErrNotActive
	}
	class := w.classifier.Classify(req)
	if !req.IsGet() {
		resp, err := w.fetcher.Fetch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
		}
		return w.result(resp, class, SourcePassthrough), nil
	}

	profile, _ := StrategyFor(class)
	switch profile.Mode {
	case ModeCacheFirst:
		return w.cacheFirst(ctx, req, profile)
	default:
		return w.networkFirst(ctx, req, profile)
	}
}

// networkFirst 先走网络；成功时 200 写入目标存储，失败时依次查缓存与兜底文档。
func (w *Worker) networkFirst(ctx context.Context, req *Request, profile StrategyProfile) (*Result, error) {
	resp, fetchErr := w.fetcher.Fetch(ctx, req)
	if fetchErr == nil {
		w.store200(ctx, profile.WriteStore, req, resp)
		return w.result(resp, profile.Class, SourceNetwork), nil
	}

	if cached, ok := w.lookup(ctx, profile.LookupOrder, req.Identity()); ok {
		return w.result(cached, profile.Class, SourceCache), nil
	}
	if profile.FallbackDocument && req.Navigable() {
		if doc, ok := w.fallbackDocument(ctx); ok {
			return w.result(doc, profile.Class, SourceFallback), nil
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrNetwork, fetchErr)
}

// cacheFirst 命中缓存立即返回并调度后台刷新；未命中时走网络。
func (w *Worker) cacheFirst(ctx context.Context, req *Request, profile StrategyProfile) (*Result, error) {
	if cached, ok := w.lookup(ctx, profile.LookupOrder, req.Identity()); ok {
		result := w.result(cached, profile.Class, SourceCache)
		if profile.Revalidate {
			result.Revalidating = w.revalidate(ctx, req, profile.WriteStore)
		}
		return result, nil
	}

	resp, fetchErr := w.fetcher.Fetch(ctx, req)
	if fetchErr == nil {
		w.store200(ctx, profile.WriteStore, req, resp)
		return w.result(resp, profile.Class, SourceNetwork), nil
	}
	if profile.FallbackDocument && req.Destination == DestinationDocument {
		if doc, ok := w.fallbackDocument(ctx); ok {
			return w.result(doc, profile.Class, SourceFallback), nil
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrNetwork, fetchErr)
}

// revalidate 在后台重新获取并覆盖运行时条目。并发达到上限时跳过，不阻塞调用方。
func (w *Worker) revalidate(ctx context.Context, req *Request, role StoreRole) bool {
	select {
	case w.revalidateSlots <- struct{}{}:
	default:
		w.log("revalidate", logrus.DebugLevel, logrus.Fields{"identity": req.Identity()}, "revalidation skipped, pool saturated")
		return false
	}

	w.background.Add(1)
	bgCtx := context.WithoutCancel(ctx)
	go func() {
		defer w.background.Done()
		defer func() { <-w.revalidateSlots }()

		resp, err := w.fetcher.Fetch(bgCtx, req)
		if err != nil {
			w.log("revalidate", logrus.DebugLevel, logrus.Fields{"identity": req.Identity(), "error": err.Error()}, "revalidation fetch failed")
			return
		}
		// 已被取代的代际不再写入，避免重建刚被清理的存储。
		if w.State() != StateActive {
			return
		}
		w.store200(bgCtx, role, req, resp)
	}()
	return true
}

// store200 仅缓存状态码 200 的响应；写入失败只记录日志，不影响返回。
func (w *Worker) store200(ctx context.Context, role StoreRole, req *Request, resp *Response) {
	if !resp.OK() {
		return
	}
	clone := resp.Clone()
	_, err := w.writer.Put(ctx, w.locator(role, req), clone.Body, cache.PutOptions{
		Status: clone.Status,
		Header: clone.Header,
	})
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrEntryTooLarge):
		w.log("store", logrus.DebugLevel, logrus.Fields{"identity": req.Identity(), "size": len(clone.Body)}, "entry exceeds size limit, not cached")
	default:
		w.log("store", logrus.WarnLevel, logrus.Fields{"identity": req.Identity(), "error": err.Error()}, "cache write failed")
	}
}

// lookup 按顺序在各存储中查找精确 identity。
func (w *Worker) lookup(ctx context.Context, order []StoreRole, identity string) (*Response, bool) {
	for _, role := range order {
		resp, err := w.read(ctx, cache.Locator{Store: w.storeName(role), Identity: identity})
		if err == nil {
			return resp, true
		}
		if !errors.Is(err, cache.ErrNotFound) {
			w.log("lookup", logrus.WarnLevel, logrus.Fields{"identity": identity, "error": err.Error()}, "cache read failed")
		}
	}
	return nil, false
}

func (w *Worker) fallbackDocument(ctx context.Context) (*Response, bool) {
	return w.lookup(ctx, []StoreRole{StoreShell}, w.fallback)
}

func (w *Worker) read(ctx context.Context, locator cache.Locator) (*Response, error) {
	result, err := w.store.Get(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer result.Reader.Close()
	body, err := io.ReadAll(result.Reader)
	if err != nil {
		return nil, err
	}
	status := result.Entry.Status
	if status == 0 {
		status = 200
	}
	return &Response{Status: status, Header: result.Entry.Header.Clone(), Body: body}, nil
}

func (w *Worker) result(resp *Response, class Class, source Source) *Result {
	return &Result{Response: resp, Class: class, Source: source, Version: w.opts.Version}
}

func bytesReader(body []byte) io.Reader {
	return bytes.NewReader(body)
}
