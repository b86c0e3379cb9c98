package config

import (
	"os"
	"path/filepath"
	"testing"
)

// shellOriginTOML 是多数用例共用的外壳站点声明。
const shellOriginTOML = `
[[Origin]]
Name = "app"
Domain = "app.local"
Upstream = "https://converter.example.com"
Shell = true
`

func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

// writeConfigDir 在同一临时目录写入多个文件，返回目录路径；
// 用于配置文件与其相对引用的清单文件同处一处的场景。
func writeConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		writeFileIn(t, dir, name, content)
	}
	return dir
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := writeConfigDir(t, map[string]string{"config.toml": content})
	return filepath.Join(dir, "config.toml")
}

func writeManifestFile(t *testing.T, name, content string) string {
	t.Helper()
	return writeFileIn(t, t.TempDir(), name, content)
}

func writeFileIn(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时文件 %s 失败: %v", name, err)
	}
	return path
}
