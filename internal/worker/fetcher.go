package worker

import "context"

// Fetcher 执行真实的网络请求。返回 error 仅表示传输失败；非 2xx 状态码不算失败。
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc 允许普通函数充当 Fetcher。
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

// Fetch 调用 f 本身。
func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
