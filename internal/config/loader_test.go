package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
StoragePath = "./data"
UpstreamTimeout = "boom"
Version = "v1"
` + shellOriginTOML
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsPlainSecondsDuration(t *testing.T) {
	cfg := `
UpstreamTimeout = 45
Version = "v1"
StorageDriver = "memory"

[[Origin]]
Name = "app"
Domain = "app.local"
Upstream = "https://converter.example.com"
Shell = true
`
	loaded, err := Load(writeTempConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.UpstreamTimeout.DurationValue() != 45*time.Second {
		t.Fatalf("纯数字应按秒解析，得到 %s", loaded.Global.UpstreamTimeout.DurationValue())
	}
}

func TestLoadReadsManifestFile(t *testing.T) {
	loaded, err := Load(testConfigPath(t, "manifest_file.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	want := []string{"/index.html", "/app.js", "/styles.css"}
	if len(loaded.Worker.Manifest) != len(want) {
		t.Fatalf("清单条目数错误: %v", loaded.Worker.Manifest)
	}
	for i, entry := range want {
		if loaded.Worker.Manifest[i] != entry {
			t.Fatalf("清单第 %d 项应为 %s，得到 %s", i, entry, loaded.Worker.Manifest[i])
		}
	}
	if loaded.Worker.ManifestFile != filepath.Join("testdata", "manifest.yaml") {
		t.Fatalf("清单路径应相对配置文件解析，得到 %s", loaded.Worker.ManifestFile)
	}
}

func TestLoadManifestAcceptsPlainList(t *testing.T) {
	path := writeManifestFile(t, "manifest.json", `["/", " /index.html ", ""]`)
	entries, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest 返回错误: %v", err)
	}
	if len(entries) != 2 || entries[0] != "/" || entries[1] != "/index.html" {
		t.Fatalf("unexpected entries: %v", entries)
	}
}

func TestLoadManifestRejectsScalar(t *testing.T) {
	path := writeManifestFile(t, "manifest.yaml", "just-a-string")
	if _, err := LoadManifest(path); err == nil {
		t.Fatalf("标量清单应报错")
	}
}

func TestLoadResolvesManifestFileNextToConfig(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"config.toml": `
Version = "v2"
StorageDriver = "memory"
ManifestFile = "precache.yaml"
` + shellOriginTOML,
		"precache.yaml": "urls:\n  - /index.html\n  - /rates.js\n",
	})
	loaded, err := Load(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Worker.ManifestFile != filepath.Join(dir, "precache.yaml") {
		t.Fatalf("清单路径应相对配置文件解析，得到 %s", loaded.Worker.ManifestFile)
	}
	if len(loaded.Worker.Manifest) != 2 || loaded.Worker.Manifest[1] != "/rates.js" {
		t.Fatalf("unexpected manifest: %v", loaded.Worker.Manifest)
	}
}
