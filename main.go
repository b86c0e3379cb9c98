package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/currency-hub/currency-hub/internal/config"
	"github.com/currency-hub/currency-hub/internal/logging"
	"github.com/currency-hub/currency-hub/internal/version"
	"github.com/currency-hub/currency-hub/internal/worker"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	precache    bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

const shutdownTimeout = 10 * time.Second

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["origins"] = config.OriginNames(cfg.Origins)
		fields["manifest"] = len(cfg.Worker.Manifest)
		fields["worker_version"] = cfg.Worker.Version
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 缓存存储 → 控制器与首个 worker → Fiber server。
	gw, err := newGateway(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化网关失败: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gw.registerWorker(ctx, cfg); err != nil {
		if opts.precache {
			fmt.Fprintf(stdErr, "安装 worker 失败: %v\n", err)
			gw.close(context.Background())
			return 1
		}
		// 没有 active worker 时控制器直通网络；下一次配置重载会再次尝试安装。
		logger.WithFields(logging.WorkerFields("install", cfg.Worker.Version, worker.StateRedundant.String())).
			WithError(err).Warn("安装 worker 失败，直通网络继续服务")
	}

	if opts.precache {
		logger.WithFields(logging.WorkerFields("precache", cfg.Worker.Version, "done")).Info("预缓存完成")
		if err := gw.close(context.Background()); err != nil {
			fmt.Fprintf(stdErr, "关闭缓存失败: %v\n", err)
			return 1
		}
		return 0
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["origins"] = config.OriginNames(cfg.Origins)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_driver"] = cfg.Global.StorageDriver
	fields["worker_version"] = cfg.Worker.Version
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := config.Watch(opts.configPath, gw.reload, func(err error) {
		logger.WithFields(logging.BaseFields("reload", opts.configPath)).WithError(err).Warn("配置重载失败，保留当前 worker")
	}); err != nil {
		logger.WithFields(logging.BaseFields("watch", opts.configPath)).WithError(err).Warn("配置监听不可用")
	}

	if err := gw.serve(ctx); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("currency-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		precache   bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 CURRENCY_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&precache, "precache", false, "安装当前版本的预缓存清单后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if checkOnly && precache {
		return cliOptions{}, errors.New("-check-config 与 -precache 不能同时使用")
	}

	path := os.Getenv("CURRENCY_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = config.DefaultPath
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		precache:    precache,
	}, nil
}

// printVersion 输出注入的版本 + 提交信息。
func printVersion() {
	fmt.Fprintln(stdOut, version.Full())
}
