package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"CoverFM/cache"
	"CoverFM/config"
	"CoverFM/core/automation"
	"CoverFM/core/conversion"
	"CoverFM/core/delivery"
	"CoverFM/core/mixdown"
	"CoverFM/core/netease"
	"CoverFM/core/pipeline"
	"CoverFM/core/separation"
	"CoverFM/db"
	"CoverFM/logger"
	"CoverFM/repository"
	"CoverFM/storage"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// app 各组件按配置装配后的集合
type app struct {
	cfg       *config.Config
	acquirer  *netease.Acquirer
	separator *separation.Separator
	adapter   *conversion.Adapter
	orch      *pipeline.Orchestrator
	manager   *pipeline.Manager
	napcat    *delivery.Client

	redis *redis.Client
	gdb   *gorm.DB
}

func loadConfig() *config.Config {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   true,
	})
	return cfg
}

// newAcquirer 搜索响应缓存优先使用 Redis，未启用或连接失败时落到文件
func newAcquirer(cfg *config.Config) (*netease.Acquirer, *redis.Client, error) {
	client := netease.NewClient(cfg.SearchAPIURL, cfg.SearchTimeout)

	var rdb *redis.Client
	if cfg.RedisEnabled {
		var err error
		rdb, err = cache.ConnectRedis(cfg)
		if err != nil {
			logger.Warn("Redis 不可用，搜索缓存改用文件", logger.ErrorField(err))
		}
	}
	if rdb != nil {
		client.SetCache(cache.NewRedisResponseCache(rdb, "coverfm:search:", cfg.SearchCacheTTL), cfg.SearchCacheTTL)
	} else {
		fc, err := cache.NewFileResponseCache(filepath.Join(cfg.CacheDir, "responses"), cfg.SearchCacheTTL)
		if err != nil {
			return nil, nil, err
		}
		client.SetCache(fc, cfg.SearchCacheTTL)
	}

	counter := cache.NewSelectorCounter(cfg.SelectorMax, cfg.SelectorTTL)
	acq := netease.NewAcquirer(client, filepath.Join(cfg.CacheDir, "music"), counter, cfg.SelectorRetryGap, cfg.DefaultQuality)
	return acq, rdb, nil
}

func sessionOptions(cfg *config.Config) automation.SessionOptions {
	return automation.SessionOptions{
		ExecPath:       cfg.ChromePath,
		Headless:       cfg.ChromeHeadless,
		ElementTimeout: cfg.ElementTimeout,
		WindowWidth:    1280,
		WindowHeight:   900,
	}
}

func resultDir(cfg *config.Config) (string, error) {
	if cfg.MSSTResultDir != "" {
		return cfg.MSSTResultDir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	dir, err := separation.FindResultsDir(wd)
	if err != nil {
		return "", fmt.Errorf("未配置 MSST_RESULTS_DIR 且未找到 MSST-WebUI-zluda/results: %w", err)
	}
	return dir, nil
}

// buildPipeline 装配流水线，不连接数据库和对象存储
func buildPipeline(cfg *config.Config) (*app, error) {
	for _, dir := range []string{cfg.CacheDir, cfg.WorkDir, cfg.ScreenshotDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建目录 %s 失败: %w", dir, err)
		}
	}

	acq, rdb, err := newAcquirer(cfg)
	if err != nil {
		return nil, err
	}

	results, err := resultDir(cfg)
	if err != nil {
		return nil, err
	}

	locks := automation.NewEndpointLocks()
	sessOpts := sessionOptions(cfg)

	sep := separation.NewSeparator(separation.Options{
		URL:           cfg.SeparationURL,
		ResultDir:     results,
		ScreenshotDir: cfg.ScreenshotDir,
		Interval:      cfg.SeparationInterval,
		Timeout:       cfg.SeparationTimeout,
		UploadDelay:   cfg.SeparationUploadDelay,
	}, separation.NewMSSTPageFactory(cfg.SeparationURL, sessOpts), locks)

	adapter := conversion.NewAdapter(conversion.Options{
		URL:           cfg.ConversionURL,
		Model:         cfg.ConversionModel,
		Voice:         cfg.TTSVoice,
		WorkDir:       cfg.WorkDir,
		ScreenshotDir: cfg.ScreenshotDir,
	}, conversion.NewGradioFactory(cfg.ConversionURL, conversion.GradioOptions{
		Session:      sessOpts,
		LoadDelay:    cfg.ModelLoadDelay,
		SettleDelay:  cfg.SubmitSettleDelay,
		PollAttempts: cfg.OutputPollAttempts,
		PollInterval: cfg.OutputPollInterval,
	}), locks)
	adapter.OnTransition = func(s conversion.State) {
		logger.Debug("变声适配器状态", logger.String("state", string(s)))
	}

	artifacts, err := cache.NewArtifactCache(filepath.Join(cfg.CacheDir, "artifacts"))
	if err != nil {
		return nil, err
	}

	orch := pipeline.NewOrchestrator(acq, sep, adapter, mixdown.NewMixer(cfg.WorkDir), artifacts, cfg.PipelineTimeout)

	return &app{
		cfg:       cfg,
		acquirer:  acq,
		separator: sep,
		adapter:   adapter,
		orch:      orch,
		napcat:    delivery.NewClient(cfg.NapcatURL, cfg.NapcatToken),
		redis:     rdb,
	}, nil
}

// withManager 接上任务仓库、对象存储和聊天投递
func (a *app) withManager(ctx context.Context) error {
	cfg := a.cfg

	var jobs repository.JobRepository
	if cfg.DBEnabled {
		gdb, err := db.ConnectGorm(cfg)
		if err != nil {
			return err
		}
		a.gdb = gdb
		jobs = repository.NewGormJobRepository(gdb)
	} else {
		logger.Info("未启用数据库，任务记录保存在内存中")
		jobs = repository.NewMemoryJobRepository()
	}

	a.manager = pipeline.NewManager(a.orch, jobs, cfg.MaxConcurrentJob)
	a.manager.SetDeliverer(a.napcat)

	if cfg.MinioEnabled {
		pub, err := storage.NewPublisher(ctx, cfg)
		if err != nil {
			logger.Warn("MinIO 不可用，成品不发布", logger.ErrorField(err))
		} else {
			a.manager.SetPublisher(pub)
		}
	}
	return nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("关闭 Redis 连接失败", logger.ErrorField(err))
		}
	}
	if err := db.Close(a.gdb); err != nil {
		logger.Warn("关闭数据库连接失败", logger.ErrorField(err))
	}
	logger.Sync()
}
