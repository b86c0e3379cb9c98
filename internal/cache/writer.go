package cache

import (
	"bytes"
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreUnavailable 表示未注入缓存存储实例。
	ErrStoreUnavailable = errors.New("cache store unavailable")
	// ErrEntryTooLarge 表示正文超过单条目上限，响应仍可返回但不落盘。
	ErrEntryTooLarge = errors.New("cache entry exceeds size limit")
)

// Writer 在 Store 之上施加单条目大小上限，并统一写入时间戳。
type Writer struct {
	store    Store
	maxBytes int64
	now      func() time.Time
}

// NewWriter 构造带大小上限的写入器；maxBytes <= 0 表示不限制。
func NewWriter(store Store, maxBytes int64) Writer {
	return Writer{
		store:    store,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// Enabled 返回当前是否具备缓存写入能力。
func (w Writer) Enabled() bool {
	return w.store != nil
}

// Fits 判断给定大小的正文是否允许写入。
func (w Writer) Fits(size int64) bool {
	return w.maxBytes <= 0 || size <= w.maxBytes
}

// Put 写入已完整读取的正文，并保持与 Store 相同的覆盖语义。
func (w Writer) Put(ctx context.Context, locator Locator, body []byte, opts PutOptions) (*Entry, error) {
	if w.store == nil {
		return nil, ErrStoreUnavailable
	}
	if !w.Fits(int64(len(body))) {
		return nil, ErrEntryTooLarge
	}
	if opts.ModTime.IsZero() {
		opts.ModTime = w.now().UTC()
	}
	return w.store.Put(ctx, locator, bytes.NewReader(body), opts)
}
