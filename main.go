package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tiko/mediacache/config"
	"github.com/tiko/mediacache/models"
	"github.com/tiko/mediacache/repository"
	"github.com/tiko/mediacache/routes"
	"github.com/tiko/mediacache/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var tokenSubject string
	var tokenTTL time.Duration

	flagSet := pflag.NewFlagSet("mediacache", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "config/config.json", "path to the JSON config file (missing file means defaults plus environment)")
	flagSet.StringVar(&tokenSubject, "issue-admin-token", "", "print an admin token for this subject and exit")
	flagSet.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of tokens printed by --issue-admin-token")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if tokenSubject != "" {
		tok, err := utils.GenerateAdminToken(cfg.JWTSecret, tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	}

	logger, err := utils.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if cfg.DeploymentVersion == "" {
		logger.Warn("DEPLOYMENT_VERSION not set, cache keys fall back to the current UTC date")
	}

	db, err := config.InitDatabase(cfg, logger, &models.MediaItem{})
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}

	var kv utils.KVStore
	switch cfg.CacheBackend {
	case "memory":
		logger.Info("using in-process cache store")
		kv = utils.NewMemoryKV()
	default:
		rdb := utils.NewRedis(cfg)
		defer rdb.Close()
		if err := utils.PingRedis(context.Background(), rdb); err != nil {
			logger.Warn("redis unreachable at startup, serving uncached until it recovers", zap.Error(err))
		}
		kv = utils.NewRedisKV(rdb)
	}

	currentKey := func() string {
		return utils.CacheKey(utils.DeploymentVersion(cfg.DeploymentVersion, time.Now()))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	utils.StartStaleKeyCleaner(ctx, kv, cfg.CacheCleanInterval(), currentKey, logger)

	r := routes.SetupRouter(routes.Dependencies{
		Config: cfg,
		Logger: logger,
		Source: repository.NewGormMediaSource(db),
		Cache:  kv,
	})

	logger.Info("starting server", zap.String("port", cfg.AppPort), zap.String("cache_backend", cfg.CacheBackend))
	if err := utils.GraceServer(":"+cfg.AppPort, r, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	return nil
}
