package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

const watchTemplate = `
Version = "%VERSION%"
StorageDriver = "memory"

[[Origin]]
Name = "app"
Domain = "app.local"
Upstream = "https://converter.example.com"
Shell = true
`

func TestWatchReloadsOnVersionChange(t *testing.T) {
	path := writeTempConfig(t, strings.ReplaceAll(watchTemplate, "%VERSION%", "v1"))

	changes := make(chan *Config, 4)
	if err := Watch(path, func(cfg *Config) { changes <- cfg }, nil); err != nil {
		t.Fatalf("Watch 返回错误: %v", err)
	}

	// 给 fsnotify 一点时间注册目录监听。
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(strings.ReplaceAll(watchTemplate, "%VERSION%", "v2")), 0o600); err != nil {
		t.Fatalf("改写配置失败: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Worker.Version == "v2" {
				return
			}
		case <-deadline:
			t.Fatalf("超时未收到配置变更回调")
		}
	}
}

func TestWatchRequiresCallback(t *testing.T) {
	if err := Watch(testConfigPath(t, "valid.toml"), nil, nil); err == nil {
		t.Fatalf("缺少回调应报错")
	}
}
