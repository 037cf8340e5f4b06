package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/RahulBansal123/audius-protocol/internal/api"
	"github.com/RahulBansal123/audius-protocol/internal/cache"
	"github.com/RahulBansal123/audius-protocol/internal/config"
	"github.com/RahulBansal123/audius-protocol/internal/eth"
	"github.com/RahulBansal123/audius-protocol/internal/eventbus"
	"github.com/RahulBansal123/audius-protocol/internal/fleet"
	"github.com/RahulBansal123/audius-protocol/internal/logging"
	"github.com/RahulBansal123/audius-protocol/internal/repository"
	"github.com/RahulBansal123/audius-protocol/internal/tasks"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

func main() {
	logger, err := logging.New()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 1. Config
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("starting discovery service",
		zap.String("commit", BuildCommit),
		zap.String("db", redactDatabaseURL(cfg.DatabaseURL)),
		zap.String("redis", cfg.RedisAddr),
		zap.String("eth_rpc", cfg.EthRPCURL),
		zap.Int("port", cfg.APIPort))

	// 2. Dependencies
	repo, err := repository.NewRepository(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer repo.Close()

	// 2a. Auto-migration (skip with SKIP_MIGRATION=true for API-only containers)
	if os.Getenv("SKIP_MIGRATION") == "true" {
		logger.Info("database migration skipped (SKIP_MIGRATION=true)")
	} else {
		if err := repo.Migrate("schema.sql"); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
		logger.Info("database migration complete")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cacheClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer cacheClient.Close()

	chain, err := eth.NewClient(cfg.EthRPCURL, cfg.EthRegistryAddress)
	if err != nil {
		logger.Fatal("failed to connect to eth rpc", zap.Error(err))
	}
	defer chain.Close()

	bus := eventbus.New()
	defer bus.Close()

	// 3. Background jobs
	balanceRefresher := tasks.NewBalanceRefresher(repo, cacheClient, chain, bus, logger)
	historyIndexer := tasks.NewHistoryIndexer(repo, cacheClient, bus, logger)
	fleetScraper := fleet.NewScraper(cfg.ServiceProviders, repo, cacheClient, logger)

	scheduler := cron.New()
	scheduleJob := func(name string, interval time.Duration, run func(context.Context) error) {
		_, err := scheduler.AddFunc("@every "+interval.String(), func() {
			if err := run(ctx); err != nil {
				logger.Error("job failed", zap.String("job", name), zap.Error(err))
			}
		})
		if err != nil {
			logger.Fatal("failed to schedule job", zap.String("job", name), zap.Error(err))
		}
		logger.Info("scheduled job", zap.String("job", name), zap.Duration("interval", interval))
	}

	if os.Getenv("ENABLE_BALANCE_REFRESHER") != "false" {
		scheduleJob("balance_refresher", cfg.BalanceRefreshInterval, balanceRefresher.Run)
	} else {
		logger.Info("balance refresher disabled (ENABLE_BALANCE_REFRESHER=false)")
	}
	if os.Getenv("ENABLE_HISTORY_INDEXER") != "false" {
		scheduleJob("history_indexer", cfg.HistoryIndexInterval, historyIndexer.Run)
	} else {
		logger.Info("history indexer disabled (ENABLE_HISTORY_INDEXER=false)")
	}
	if os.Getenv("ENABLE_FLEET_SCRAPER") != "false" && len(cfg.ServiceProviders) > 0 {
		scheduleJob("fleet_scraper", cfg.FleetScrapeInterval, fleetScraper.Run)
	} else {
		logger.Info("fleet scraper disabled")
	}

	// Keep the cached chain tip warm for /health_check.
	scheduleJob("chain_tip", 30*time.Second, func(ctx context.Context) error {
		rpcCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		number, hash, err := chain.LatestBlock(rpcCtx)
		if err != nil {
			return err
		}
		return cacheClient.CacheLatestChainBlock(ctx, number, hash, 2*time.Minute)
	})

	scheduler.Start()

	// 4. API
	apiServer := api.NewServer(repo, cacheClient, chain, bus, cfg, logger)
	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown error", zap.Error(err))
	}
	cancel()
	<-scheduler.Stop().Done()
}

func redactDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err == nil && u.Scheme != "" {
		if u.User != nil {
			user := u.User.Username()
			if user == "" {
				user = "user"
			}
			u.User = url.UserPassword(user, "****")
		}
		// Avoid leaking secrets embedded in query params; keep only scheme/host/path for debugging.
		u.RawQuery = ""
		return u.String()
	}

	// Best-effort fallback for malformed/DSN-like URLs.
	re := regexp.MustCompile(`(?i)(postgres(?:ql)?://[^:/?#]+):([^@]+)@`)
	if re.MatchString(raw) {
		return re.ReplaceAllString(raw, `$1:****@`)
	}
	re = regexp.MustCompile(`(?i)(password=)([^\\s]+)`)
	return re.ReplaceAllString(raw, `$1****`)
}
