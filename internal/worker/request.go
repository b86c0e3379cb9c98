package worker

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"

	"github.com/currency-hub/currency-hub/internal/cache"
)

// Destination 描述请求的用途，对应浏览器的 Sec-Fetch-Dest。
type Destination string

const (
	DestinationDocument Destination = "document"
	DestinationScript   Destination = "script"
	DestinationStyle    Destination = "style"
	DestinationImage    Destination = "image"
	DestinationFont     Destination = "font"
	DestinationData     Destination = "data"
	DestinationOther    Destination = "other"
)

// DestinationFromHeader 依据 Sec-Fetch-Dest 推断用途；缺失时 Accept 含 text/html 视为文档请求。
func DestinationFromHeader(header http.Header) Destination {
	switch strings.ToLower(strings.TrimSpace(header.Get("Sec-Fetch-Dest"))) {
	case "document", "iframe", "frame":
		return DestinationDocument
	case "script", "worker", "sharedworker":
		return DestinationScript
	case "style":
		return DestinationStyle
	case "image":
		return DestinationImage
	case "font":
		return DestinationFont
	case "empty", "manifest", "json":
		return DestinationData
	case "":
		if strings.Contains(strings.ToLower(header.Get("Accept")), "text/html") {
			return DestinationDocument
		}
		return DestinationOther
	default:
		return DestinationOther
	}
}

// Request 是被拦截的请求，URL 必须是绝对地址（含查询串）。
type Request struct {
	Method      string
	URL         *url.URL
	Destination Destination
	Header      http.Header
	// Body 仅随直通的非 GET 请求发送到上游。
	Body []byte
}

// NewRequest 根据请求头推断 Destination 构造 Request。
func NewRequest(method string, u *url.URL, header http.Header) *Request {
	if header == nil {
		header = http.Header{}
	}
	return &Request{
		Method:      strings.ToUpper(method),
		URL:         u,
		Destination: DestinationFromHeader(header),
		Header:      header,
	}
}

// Identity 返回缓存键：方法 + 完整 URL。
func (r *Request) Identity() string {
	return cache.Identity(r.Method, r.URL.String())
}

// IsGet 判断请求是否会被缓存路由拦截。
func (r *Request) IsGet() bool {
	return r.Method == http.MethodGet
}

// Navigable 判断请求是否为可导航文档：文档用途，或路径为 / 或以 .html 结尾。
func (r *Request) Navigable() bool {
	if r.Destination == DestinationDocument {
		return true
	}
	path := r.URL.Path
	return path == "" || path == "/" || strings.HasSuffix(strings.ToLower(path), ".html")
}

// Response 是完整读取后的上游或缓存响应。
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Clone 深拷贝响应，写入缓存与返回给调用方的副本互不共享缓冲区。
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   bytes.Clone(r.Body),
	}
}

// OK 判断响应是否可写入缓存（仅 200）。
func (r *Response) OK() bool {
	return r != nil && r.Status == http.StatusOK
}

// Successful 判断响应是否为 2xx，预缓存安装以此为准。
func (r *Response) Successful() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Source 标记响应来自网络、缓存、兜底文档还是直通。
type Source string

const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourceFallback    Source = "fallback"
	SourcePassthrough Source = "passthrough"
)

// Result 是一次路由的结果。
type Result struct {
	Response *Response
	Class    Class
	Source   Source
	// Version 为处理该请求的 worker 版本，直通时为空。
	Version string
	// Revalidating 表示已调度后台刷新。
	Revalidating bool
}
