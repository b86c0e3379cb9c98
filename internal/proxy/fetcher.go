package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/currency-hub/currency-hub/internal/server"
	"github.com/currency-hub/currency-hub/internal/worker"
)

// NetworkFetcher 通过共享 http.Client 获取上游响应，实现 worker.Fetcher。
type NetworkFetcher struct {
	client *http.Client
}

// NewNetworkFetcher 构造网络获取器；client 为空时使用默认超时的共享客户端。
func NewNetworkFetcher(client *http.Client) *NetworkFetcher {
	if client == nil {
		client = server.NewUpstreamClient(nil)
	}
	return &NetworkFetcher{client: client}
}

// Fetch 发起上游请求并完整读取正文。传输层错误（含超时）返回 error，任何 HTTP 状态码都视为成功获取。
func (f *NetworkFetcher) Fetch(ctx context.Context, req *worker.Request) (*worker.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("request url required")
	}
	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, err
	}
	server.CopyHeaders(upstreamReq.Header, req.Header)
	// 交给 Transport 协商 gzip 并透明解压，缓存中只保存原始字节。
	upstreamReq.Header.Del("Accept-Encoding")
	upstreamReq.Header.Del("Host")
	upstreamReq.Host = req.URL.Host

	resp, err := f.client.Do(upstreamReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	header := http.Header{}
	server.CopyHeaders(header, resp.Header)
	header.Del("Content-Length")
	return &worker.Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   payload,
	}, nil
}
