package config

// ShellStoreName 返回当前版本的应用外壳存储名，例如 currency-converter-v1.0.2。
func (w WorkerConfig) ShellStoreName() string {
	return w.AppName + "-" + w.Version
}

// RuntimeStoreName 返回运行时存储名；VersionedRuntime 关闭时名称不随版本变化，
// 激活阶段的清理会保留它。
func (w WorkerConfig) RuntimeStoreName() string {
	runtime := w.RuntimeName
	if runtime == "" {
		runtime = w.AppName + "-runtime"
	}
	if !w.VersionedRuntime {
		return runtime
	}
	return runtime + "-" + w.Version
}
