package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 支持的缓存存储驱动。
const (
	DriverFS      = "fs"
	DriverLevelDB = "leveldb"
	DriverMemory  = "memory"
)

// GlobalConfig 描述全局运行时行为：监听端口、日志、存储与上游超时。
type GlobalConfig struct {
	ListenPort            int      `mapstructure:"ListenPort"`
	LogLevel              string   `mapstructure:"LogLevel"`
	LogFilePath           string   `mapstructure:"LogFilePath"`
	LogMaxSize            int      `mapstructure:"LogMaxSize"`
	LogMaxBackups         int      `mapstructure:"LogMaxBackups"`
	LogCompress           bool     `mapstructure:"LogCompress"`
	StoragePath           string   `mapstructure:"StoragePath"`
	StorageDriver         string   `mapstructure:"StorageDriver"`
	CompressEntries       bool     `mapstructure:"CompressEntries"`
	UpstreamTimeout       Duration `mapstructure:"UpstreamTimeout"`
	MaxEntrySize          int64    `mapstructure:"MaxEntrySize"`
	RevalidateConcurrency int      `mapstructure:"RevalidateConcurrency"`
	InstallConcurrency    int      `mapstructure:"InstallConcurrency"`
}

// WorkerConfig 描述一次部署代际（版本号、预缓存清单、分类规则）。
type WorkerConfig struct {
	AppName          string   `mapstructure:"AppName"`
	RuntimeName      string   `mapstructure:"RuntimeName"`
	Version          string   `mapstructure:"Version"`
	VersionedRuntime bool     `mapstructure:"VersionedRuntime"`
	SkipWaiting      bool     `mapstructure:"SkipWaiting"`
	RateAPIHosts     []string `mapstructure:"RateAPIHosts"`
	ShellExtensions  []string `mapstructure:"ShellExtensions"`
	FallbackDocument string   `mapstructure:"FallbackDocument"`
	Manifest         []string `mapstructure:"Manifest"`
	ManifestFile     string   `mapstructure:"ManifestFile"`
}

// OriginConfig 将本地 Host 映射到上游站点；Shell=true 的站点承载应用自身的静态资源。
type OriginConfig struct {
	Name     string `mapstructure:"Name"`
	Domain   string `mapstructure:"Domain"`
	Upstream string `mapstructure:"Upstream"`
	Shell    bool   `mapstructure:"Shell"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig   `mapstructure:",squash"`
	Worker  WorkerConfig   `mapstructure:",squash"`
	Origins []OriginConfig `mapstructure:"Origin"`
}

// ShellOrigin 返回承载应用外壳的站点配置（假定 Validate 已经通过）。
func (c *Config) ShellOrigin() (OriginConfig, bool) {
	if c == nil {
		return OriginConfig{}, false
	}
	for _, origin := range c.Origins {
		if origin.Shell {
			return origin, true
		}
	}
	return OriginConfig{}, false
}

// OriginNames 返回所有站点名称摘要，例如 app:shell、rates:upstream，供日志字段使用。
func OriginNames(origins []OriginConfig) []string {
	if len(origins) == 0 {
		return nil
	}
	result := make([]string, len(origins))
	for i, origin := range origins {
		role := "upstream"
		if origin.Shell {
			role = "shell"
		}
		result[i] = fmt.Sprintf("%s:%s", origin.Name, role)
	}
	return result
}
