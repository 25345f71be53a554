package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ChainScope-MCP/internal/api"
	"ChainScope-MCP/internal/auth"
	"ChainScope-MCP/internal/config"
	"ChainScope-MCP/internal/knowledge"
	"ChainScope-MCP/internal/storage/mysql"
	"ChainScope-MCP/internal/task"
	"ChainScope-MCP/internal/tools"
	"ChainScope-MCP/internal/verify"
	"ChainScope-MCP/internal/web3/provider"
	"ChainScope-MCP/pkg/logger"
	"ChainScope-MCP/pkg/plugin"
)

// main 是 ChainScope 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("chainscoped 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("CHAINSCOPE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "chainscope.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	dataDir := cfg.Runtime.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	// 执行历史仓库。
	var reportRepo mysql.ReportRepository
	switch cfg.Storage.ReportStore.Driver {
	case "memory", "":
		repo, err := mysql.NewMemoryReportRepository(dataDir)
		if err != nil {
			return err
		}
		reportRepo = repo
	case "mysql":
		repo, err := mysql.NewSQLReportRepository(ctx, mysql.Config{
			DSN:             cfg.Storage.ReportStore.DSN,
			MaxOpenConns:    cfg.Storage.ReportStore.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.ReportStore.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.ReportStore.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Storage.ReportStore.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		reportRepo = repo
	default:
		return mysql.ErrUnsupportedDriver
	}
	if closer, ok := reportRepo.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// 任务状态存储。
	var taskStore task.Store
	switch cfg.Storage.TaskStore.Driver {
	case "memory", "":
		taskStore = task.NewMemoryStore()
	case "mysql":
		store, err := task.NewMySQLStore(cfg.Storage.TaskStore.DSN)
		if err != nil {
			return err
		}
		taskStore = store
	default:
		return mysql.ErrUnsupportedDriver
	}
	defer func() {
		if taskStore != nil {
			_ = taskStore.Close()
		}
	}()

	// 任务队列。
	var taskQueue task.Queue
	switch cfg.TaskQueue.Driver {
	case "", "memory":
		taskQueue = task.NewMemoryQueue(1024)
	case "redis":
		queue, err := task.NewRedisQueue(task.RedisQueueConfig{
			Address:   cfg.TaskQueue.Redis.Address,
			Password:  cfg.TaskQueue.Redis.Password,
			DB:        cfg.TaskQueue.Redis.DB,
			Queue:     cfg.TaskQueue.Redis.Queue,
			BlockWait: time.Duration(cfg.TaskQueue.Redis.BlockWait) * time.Second,
		})
		if err != nil {
			return err
		}
		taskQueue = queue
	case "rabbitmq":
		queue, err := task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:        cfg.TaskQueue.RabbitMQ.URL,
			Queue:      cfg.TaskQueue.RabbitMQ.Queue,
			Prefetch:   cfg.TaskQueue.RabbitMQ.Prefetch,
			Durable:    cfg.TaskQueue.RabbitMQ.Durable,
			AutoDelete: cfg.TaskQueue.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		taskQueue = queue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.TaskQueue.Driver)
	}
	defer func() {
		if taskQueue != nil {
			if err := taskQueue.Close(); err != nil {
				logger.L().Warn("关闭任务队列失败", "error", err)
			}
		}
	}()

	// 链客户端注册表。
	chainRegistry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	// 源码验证注册表客户端。
	verifier := verify.NewClient(verify.Config{
		BaseURL: cfg.Registry.BaseURL,
		APIKey:  cfg.Registry.APIKey,
		Timeout: cfg.Registry.RegistryTimeout(),
	})

	// 文档知识库。
	var knowledgeProvider knowledge.Provider
	if cfg.Knowledge.Source != "" {
		provider, err := knowledge.LoadStaticProvider(cfg.Knowledge.Source, cfg.Knowledge.MaxResults)
		if err != nil {
			return err
		}
		knowledgeProvider = provider
	} else {
		knowledgeProvider = knowledge.NewStaticProvider(knowledge.DefaultSnippets(), cfg.Knowledge.MaxResults)
	}

	toolOpts := []tools.Option{
		tools.WithDocsProvider(knowledgeProvider),
		tools.WithHistoryRepository(reportRepo),
		tools.WithVerifier(verifier),
		tools.WithCallTimeout(cfg.Inspector.CallTimeout()),
	}

	var sinkResults chan map[string]any
	if cfg.Plugins.Enabled && cfg.Plugins.Manifest != "" {
		sinkResults = make(chan map[string]any, 128)
		defer close(sinkResults)
		toolOpts = append(toolOpts, tools.WithResultHook(func(result tools.Result) {
			select {
			case sinkResults <- map[string]any{
				"tool":     result.Tool,
				"chain":    result.Chain,
				"chain_id": result.ChainID,
			}:
			default:
				// 通道已满时丢弃，插件消费不应拖慢主流程。
			}
		}))
	}

	dispatcher := tools.New(chainRegistry, toolOpts...)

	// 鉴权服务。
	seeds := make([]auth.Seed, 0, len(cfg.Auth.APIKeys))
	for _, key := range cfg.Auth.APIKeys {
		seeds = append(seeds, auth.Seed{
			KeyID:       key.ID,
			Secret:      key.Secret,
			Label:       key.Label,
			Permissions: key.Permissions,
			Disabled:    key.Disabled,
		})
	}
	var authStore auth.Store
	switch cfg.Auth.Store.Driver {
	case "", "memory":
		store, err := auth.NewMemoryStore(nil)
		if err != nil {
			return err
		}
		authStore = store
	case "mysql":
		store, err := mysql.NewSQLAuthStore(ctx, mysql.Config{DSN: cfg.Auth.Store.DSN})
		if err != nil {
			return err
		}
		defer store.Close()
		authStore = store
	default:
		return mysql.ErrUnsupportedDriver
	}
	authService, err := auth.NewService(ctx, auth.Config{
		Mode:  auth.Mode(cfg.Auth.Mode),
		Seeds: seeds,
	}, authStore)
	if err != nil {
		return err
	}

	// 插件清单（可选）。
	if sinkResults != nil {
		pluginCfg, err := plugin.LoadManagerConfig(cfg.Plugins.Manifest)
		if err != nil {
			return err
		}
		pluginManager, err := plugin.NewManager(pluginCfg,
			plugin.WithResource(plugin.ResourceToolRegister, dispatcher.RegisterTool),
			plugin.WithResource(plugin.ResourceSinkResults, (<-chan map[string]any)(sinkResults)),
		)
		if err != nil {
			return err
		}
		if err := pluginManager.StartAll(ctx); err != nil {
			return err
		}
		defer func() {
			if err := pluginManager.StopAll(context.Background()); err != nil {
				logger.L().Warn("停止插件失败", "error", err)
			}
		}()
	}

	taskService := task.NewService(taskStore, taskQueue, cfg.Storage.TaskStore.Retries)
	processor := task.NewProcessor(dispatcher, taskStore, taskQueue, taskQueue,
		task.WithWorkerCount(cfg.TaskQueue.Worker),
		task.WithProcessorLogger(logger.Named("task-processor")),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("任务处理器异常退出", "error", err)
		}
	}()

	server := api.NewServer(cfg.Server.Address, taskService,
		api.WithDispatcher(dispatcher),
		api.WithAuthService(authService),
	)

	logger.L().Info("chainscoped 启动",
		"address", cfg.Server.Address,
		"queue", cfg.TaskQueue.Driver,
		"task_store", cfg.Storage.TaskStore.Driver,
		"report_store", cfg.Storage.ReportStore.Driver,
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
