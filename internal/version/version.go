package version

import (
	"fmt"
	"runtime"
)

// Version/Commit 通过 -ldflags "-X" 在构建时注入。
var (
	Version = "0.1.0"
	Commit  = "dev"
)

// Full 返回 CLI 打印与启动日志使用的版本串，例如 currency-hub 0.1.0 (dev, go1.25.0)。
func Full() string {
	return fmt.Sprintf("currency-hub %s (%s, %s)", Version, Commit, runtime.Version())
}
