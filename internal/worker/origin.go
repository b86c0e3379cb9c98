package worker

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// JoinOrigin 将站点内路径与查询串拼到 origin 上，保留 origin 自带的路径前缀：
// https://app.test/converter + /index.html → https://app.test/converter/index.html。
// 页面请求的上游地址与清单、兜底文档的地址都经由这里计算，缓存 identity 才能一致。
func JoinOrigin(origin *url.URL, rawPath, rawQuery string) *url.URL {
	clean := path.Clean("/" + rawPath)
	if strings.HasSuffix(rawPath, "/") && clean != "/" {
		clean += "/"
	}
	target := *origin
	target.Path = strings.TrimSuffix(origin.Path, "/") + clean
	target.RawPath = ""
	target.RawQuery = rawQuery
	target.Fragment = ""
	return &target
}

// resolveEntry 将清单条目解析为绝对 URL：以 / 开头的路径挂在外壳站点（含路径前缀）下，其余必须是绝对地址。
func resolveEntry(origin *url.URL, entry string) (*url.URL, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil, errors.New("empty entry")
	}
	ref, err := url.Parse(entry)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() {
		return ref, nil
	}
	if !strings.HasPrefix(entry, "/") || strings.HasPrefix(entry, "//") {
		return nil, fmt.Errorf("entry %q must be absolute or start with /", entry)
	}
	return JoinOrigin(origin, ref.Path, ref.RawQuery), nil
}
