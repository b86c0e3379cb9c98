package worker

import (
	"net/url"
	"path"
	"strings"
)

// Class 是请求的三分类结果。
type Class int

const (
	ClassRateData Class = iota
	ClassShell
	ClassOther
)

func (c Class) String() string {
	switch c {
	case ClassRateData:
		return "rate-data"
	case ClassShell:
		return "shell"
	case ClassOther:
		return "other"
	default:
		return "unknown"
	}
}

// DefaultShellExtensions 是被视为应用自身静态资源的扩展名。
var DefaultShellExtensions = []string{".css", ".js", ".png", ".jpg", ".json", ".woff2"}

// Classifier 是无 I/O 的纯分类器，构造后只读，可并发使用。
type Classifier struct {
	rateHosts  map[string]struct{}
	shellHost  string
	extensions map[string]struct{}
}

// NewClassifier 构造分类器。shellOrigin 为应用外壳所在站点；extensions 为空时使用默认扩展名。
func NewClassifier(rateHosts []string, shellOrigin *url.URL, extensions []string) Classifier {
	c := Classifier{
		rateHosts:  make(map[string]struct{}, len(rateHosts)),
		extensions: make(map[string]struct{}),
	}
	for _, host := range rateHosts {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			c.rateHosts[host] = struct{}{}
		}
	}
	if shellOrigin != nil {
		c.shellHost = strings.ToLower(shellOrigin.Host)
	}
	if len(extensions) == 0 {
		extensions = DefaultShellExtensions
	}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.extensions[ext] = struct{}{}
	}
	return c
}

// Classify 按顺序判定，首个命中即返回：汇率 API 主机、外壳请求、其他。
func (c Classifier) Classify(req *Request) Class {
	if req == nil || req.URL == nil {
		return ClassOther
	}
	if _, ok := c.rateHosts[strings.ToLower(req.URL.Hostname())]; ok {
		return ClassRateData
	}
	if req.Destination == DestinationDocument {
		return ClassShell
	}
	if c.onShellOrigin(req.URL) && c.shellPath(req.URL.Path) {
		return ClassShell
	}
	return ClassOther
}

func (c Classifier) onShellOrigin(u *url.URL) bool {
	return c.shellHost != "" && strings.EqualFold(u.Host, c.shellHost)
}

func (c Classifier) shellPath(p string) bool {
	if p == "" || p == "/" {
		return true
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == ".html" {
		return true
	}
	_, ok := c.extensions[ext]
	return ok
}
