package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Store 负责管理多个具名缓存存储的读写。磁盘布局因驱动而异，例如 fs 驱动：
//
//	<StoragePath>/<StoreName>/<blake3(identity)>.entry   # JSON 头 + 原始正文
//
// 所有实现都必须保证同一 Locator 的写入是原子的，并发写入以最后一次为准。
type Store interface {
	// Open 创建（若不存在）一个空的具名存储。
	Open(ctx context.Context, name string) error

	// Has 返回具名存储是否存在。
	Has(ctx context.Context, name string) (bool, error)

	// Names 返回所有具名存储，按名称排序。
	Names(ctx context.Context) ([]string, error)

	// Drop 删除具名存储及其全部条目；存储不存在时视为成功。
	Drop(ctx context.Context, name string) error

	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 写入条目并覆盖同一 identity 的旧值，存储不存在时自动创建。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除单个条目。
	Remove(ctx context.Context, locator Locator) error

	// Entries 列出具名存储中的全部条目（不含正文），存储不存在时返回 ErrStoreNotFound。
	Entries(ctx context.Context, name string) ([]Entry, error)

	// Close 释放驱动持有的资源。
	Close() error
}

// PutOptions 携带需要与正文一起持久化的响应元数据。
type PutOptions struct {
	Status  int
	Header  http.Header
	ModTime time.Time
}

// Locator 唯一定位一个缓存条目：存储名 + 请求标识（方法 + 完整 URL）。
type Locator struct {
	Store    string
	Identity string
}

// Identity 构造请求标识，例如 "GET https://api.frankfurter.dev/v1/latest"。
func Identity(method, rawURL string) string {
	return strings.ToUpper(method) + " " + rawURL
}

// Entry 描述一个已持久化的响应（不含正文）。
type Entry struct {
	Locator   Locator     `json:"locator"`
	Status    int         `json:"status"`
	Header    http.Header `json:"header,omitempty"`
	SizeBytes int64       `json:"size_bytes"`
	ModTime   time.Time   `json:"mod_time"`
	Digest    string      `json:"digest"`
}

// ReadResult 组合 Entry 与正文 Reader，便于上层直接读取或流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

var (
	// ErrNotFound 表示缓存条目不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrStoreNotFound 表示具名存储不存在。
	ErrStoreNotFound = errors.New("cache store not found")
	// ErrInvalidStoreName 表示存储名不是单一、安全的路径片段。
	ErrInvalidStoreName = errors.New("invalid cache store name")
)

// ValidateStoreName 校验存储名：非空，不含路径分隔符与控制字符，且不能以 . 开头。
func ValidateStoreName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidStoreName, name)
	}
	for _, r := range name {
		if r == '/' || r == '\\' || r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q", ErrInvalidStoreName, name)
		}
	}
	return nil
}

func validateLocator(locator Locator) error {
	if err := ValidateStoreName(locator.Store); err != nil {
		return err
	}
	if locator.Identity == "" {
		return errors.New("cache identity required")
	}
	return nil
}

// readSeekNopCloser 让内存中的正文满足 io.ReadSeekCloser。
type readSeekNopCloser struct {
	io.ReadSeeker
}

func (readSeekNopCloser) Close() error { return nil }
