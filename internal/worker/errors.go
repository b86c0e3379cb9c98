package worker

import "errors"

var (
	// ErrNetwork 表示上游不可达且没有可用的缓存条目。
	ErrNetwork = errors.New("network error")
	// ErrInstallFailed 表示预缓存清单中至少一项无法获取或写入。
	ErrInstallFailed = errors.New("install failed")
	// ErrRestoreFailed 表示磁盘上没有可复用的同版本外壳存储。
	ErrRestoreFailed = errors.New("restore failed")
	// ErrNotInstalled 表示尚未完成安装的 worker 被要求激活。
	ErrNotInstalled = errors.New("worker not installed")
	// ErrNoWaitingWorker 表示 SkipWaiting 时没有等待中的 worker。
	ErrNoWaitingWorker = errors.New("no waiting worker")
	// ErrNotActive 表示请求到达时 worker 已不处于 active 状态。
	ErrNotActive = errors.New("worker not active")
	// ErrInvalidTransition 表示生命周期状态迁移不合法，例如重复安装。
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)
