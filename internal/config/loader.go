package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultPath 是未指定 -config 与环境变量时使用的配置文件。
const DefaultPath = "config.toml"

var (
	defaultRateAPIHosts    = []string{"api.frankfurter.dev"}
	defaultShellExtensions = []string{".css", ".js", ".png", ".jpg", ".json", ".woff2"}
)

// Load 读取并解析 TOML 配置文件，同时注入默认值、加载清单文件并执行校验。
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	return decode(v, path)
}

func decode(v *viper.Viper, path string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyWorkerDefaults(&cfg.Worker)
	for i := range cfg.Origins {
		applyOriginDefaults(&cfg.Origins[i])
	}

	if manifestPath := strings.TrimSpace(cfg.Worker.ManifestFile); manifestPath != "" {
		if !filepath.IsAbs(manifestPath) {
			manifestPath = filepath.Join(filepath.Dir(path), manifestPath)
		}
		entries, err := LoadManifest(manifestPath)
		if err != nil {
			return nil, err
		}
		cfg.Worker.ManifestFile = manifestPath
		cfg.Worker.Manifest = entries
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Global.StorageDriver != DriverMemory {
		absStorage, err := filepath.Abs(cfg.Global.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存目录: %w", err)
		}
		cfg.Global.StoragePath = absStorage
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("StorageDriver", DriverFS)
	v.SetDefault("CompressEntries", false)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("MaxEntrySize", 10*1024*1024)
	v.SetDefault("RevalidateConcurrency", 32)
	v.SetDefault("InstallConcurrency", 4)
	v.SetDefault("AppName", "currency-converter")
	v.SetDefault("RuntimeName", "currency-runtime")
	v.SetDefault("VersionedRuntime", true)
	v.SetDefault("SkipWaiting", true)
	v.SetDefault("FallbackDocument", "/index.html")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	g.StorageDriver = strings.ToLower(strings.TrimSpace(g.StorageDriver))
	if g.StorageDriver == "" {
		g.StorageDriver = DriverFS
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.RevalidateConcurrency == 0 {
		g.RevalidateConcurrency = 32
	}
	if g.InstallConcurrency == 0 {
		g.InstallConcurrency = 4
	}
}

func applyWorkerDefaults(w *WorkerConfig) {
	w.AppName = strings.TrimSpace(w.AppName)
	w.RuntimeName = strings.TrimSpace(w.RuntimeName)
	w.Version = strings.TrimSpace(w.Version)
	if w.RuntimeName == "" && w.AppName != "" {
		w.RuntimeName = w.AppName + "-runtime"
	}
	if len(w.RateAPIHosts) == 0 {
		w.RateAPIHosts = append([]string(nil), defaultRateAPIHosts...)
	}
	for i, host := range w.RateAPIHosts {
		w.RateAPIHosts[i] = strings.ToLower(strings.TrimSpace(host))
	}
	if len(w.ShellExtensions) == 0 {
		w.ShellExtensions = append([]string(nil), defaultShellExtensions...)
	}
	for i, ext := range w.ShellExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.ShellExtensions[i] = ext
	}
	if strings.TrimSpace(w.FallbackDocument) == "" {
		w.FallbackDocument = "/index.html"
	}
	for i, entry := range w.Manifest {
		w.Manifest[i] = strings.TrimSpace(entry)
	}
}

func applyOriginDefaults(o *OriginConfig) {
	o.Name = strings.TrimSpace(o.Name)
	o.Domain = strings.ToLower(strings.TrimSpace(o.Domain))
	o.Upstream = strings.TrimRight(strings.TrimSpace(o.Upstream), "/")
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
