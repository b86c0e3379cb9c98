package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedDrivers = map[string]struct{}{
	DriverFS:      {},
	DriverLevelDB: {},
	DriverMemory:  {},
}

const supportedDriverList = "fs|leveldb|memory"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if err := c.Global.validate(); err != nil {
		return err
	}
	if err := c.Worker.validate(); err != nil {
		return err
	}
	return validateOrigins(c.Origins)
}

func (g GlobalConfig) validate() error {
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, ok := supportedDrivers[g.StorageDriver]; !ok {
		return newFieldError("Global.StorageDriver", "仅支持 "+supportedDriverList)
	}
	if g.StorageDriver != DriverMemory && strings.TrimSpace(g.StoragePath) == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.MaxEntrySize <= 0 {
		return newFieldError("Global.MaxEntrySize", "必须大于 0")
	}
	if g.RevalidateConcurrency < 0 {
		return newFieldError("Global.RevalidateConcurrency", "不能为负数")
	}
	if g.InstallConcurrency <= 0 {
		return newFieldError("Global.InstallConcurrency", "必须大于 0")
	}
	return nil
}

func (w WorkerConfig) validate() error {
	if w.AppName == "" {
		return newFieldError("Worker.AppName", "不能为空")
	}
	if strings.ContainsAny(w.AppName, `/\`) {
		return newFieldError("Worker.AppName", "不能包含路径分隔符")
	}
	if strings.ContainsAny(w.RuntimeName, `/\`) {
		return newFieldError("Worker.RuntimeName", "不能包含路径分隔符")
	}
	if w.Version == "" {
		return newFieldError("Worker.Version", "不能为空")
	}
	if strings.ContainsAny(w.Version, `/\ `) {
		return newFieldError("Worker.Version", "不能包含空白或路径分隔符")
	}
	if w.AppName == w.RuntimeName && w.VersionedRuntime {
		return newFieldError("Worker.RuntimeName", "与 AppName 相同时 shell 与 runtime 存储会重名")
	}
	if !strings.HasPrefix(w.FallbackDocument, "/") {
		return newFieldError("Worker.FallbackDocument", "必须是以 / 开头的路径")
	}
	for _, host := range w.RateAPIHosts {
		if host == "" || strings.Contains(host, "/") {
			return newFieldError("Worker.RateAPIHosts", fmt.Sprintf("非法主机名 %q", host))
		}
	}
	for _, ext := range w.ShellExtensions {
		if len(ext) < 2 {
			return newFieldError("Worker.ShellExtensions", fmt.Sprintf("非法扩展名 %q", ext))
		}
	}

	seen := make(map[string]struct{}, len(w.Manifest))
	for idx, entry := range w.Manifest {
		field := fmt.Sprintf("Worker.Manifest[%d]", idx)
		if entry == "" {
			return newFieldError(field, "不能为空")
		}
		if !strings.HasPrefix(entry, "/") {
			parsed, err := url.Parse(entry)
			if err != nil || parsed.Scheme == "" || parsed.Host == "" {
				return newFieldError(field, "必须是 / 开头的路径或绝对 URL")
			}
		}
		if _, dup := seen[entry]; dup {
			return newFieldError(field, "重复")
		}
		seen[entry] = struct{}{}
	}
	return nil
}

func validateOrigins(origins []OriginConfig) error {
	if len(origins) == 0 {
		return errors.New("至少需要配置一个 Origin")
	}

	seenNames := map[string]struct{}{}
	seenDomains := map[string]struct{}{}
	shellCount := 0
	for i := range origins {
		origin := origins[i]
		if origin.Name == "" {
			return newFieldError("Origin[].Name", "不能为空")
		}
		if _, exists := seenNames[origin.Name]; exists {
			return newFieldError(originField(origin.Name, "Name"), "重复")
		}
		seenNames[origin.Name] = struct{}{}

		if origin.Domain == "" {
			return newFieldError(originField(origin.Name, "Domain"), "不能为空")
		}
		if _, exists := seenDomains[origin.Domain]; exists {
			return newFieldError(originField(origin.Name, "Domain"), "重复")
		}
		seenDomains[origin.Domain] = struct{}{}

		if origin.Upstream == "" {
			return newFieldError(originField(origin.Name, "Upstream"), "不能为空")
		}
		parsed, err := url.Parse(origin.Upstream)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return newFieldError(originField(origin.Name, "Upstream"), "必须是合法的绝对 URL")
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return newFieldError(originField(origin.Name, "Upstream"), "仅支持 http/https")
		}
		if origin.Shell {
			shellCount++
		}
	}

	if shellCount != 1 {
		return newFieldError("Origin[].Shell", "必须且只能有一个 Shell 站点")
	}
	return nil
}
