package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/RahulBansal123/audius-protocol/internal/cache"
	"github.com/RahulBansal123/audius-protocol/internal/config"
	"github.com/RahulBansal123/audius-protocol/internal/metrics"
)

// SnapshotKind is the status_snapshots row the scraper maintains.
const SnapshotKind = "fleet_stats"

const scrapeTimeout = 3 * time.Second

// NodeStats is the per-provider aggregate extracted from a node's
// /health_check response.
type NodeStats struct {
	SPID                 int64  `json:"sp_id"`
	Endpoint             string `json:"endpoint"`
	Version              string `json:"version"`
	BlockDifference      int64  `json:"block_difference"`
	DatabaseSizeGB       int    `json:"size_database_gb"`
	FilesystemSizeGB     int    `json:"size_filesystem_gb"`
	FilesystemUsedGB     int    `json:"size_filesystem_used_gb"`
	FilesystemFreeGB     int    `json:"size_filesystem_free_gb"`
	MeetsMinRequirements bool   `json:"meets_min_requirements"`
	CPUCount             int    `json:"cpu_count"`
	MemoryGB             int    `json:"memory_gb"`
	MemoryUsedGB         int    `json:"memory_used_gb"`
	MemoryFreeGB         int    `json:"memory_free_gb"`
	MemoryRedisGB        int    `json:"memory_redis_gb"`
}

// healthResponse mirrors the fields we read from a node's health payload.
type healthResponse struct {
	Data struct {
		BlockDifference      int64  `json:"block_difference"`
		DatabaseSize         uint64 `json:"database_size"`
		FilesystemSize       uint64 `json:"filesystem_size"`
		FilesystemUsed       uint64 `json:"filesystem_used"`
		MeetsMinRequirements bool   `json:"meets_min_requirements"`
		NumberOfCPUs         int    `json:"number_of_cpus"`
		TotalMemory          uint64 `json:"total_memory"`
		UsedMemory           uint64 `json:"used_memory"`
		RedisTotalMemory     uint64 `json:"redis_total_memory"`
	} `json:"data"`
	Version struct {
		Version string `json:"version"`
	} `json:"version"`
}

// SnapshotStore persists the aggregate the API serves.
type SnapshotStore interface {
	UpsertStatusSnapshot(ctx context.Context, kind string, payload json.RawMessage) error
}

// CompletionRecorder records when a scrape pass last finished.
type CompletionRecorder interface {
	SetLastCompletion(ctx context.Context, key string, t time.Time) error
}

// Scraper polls every configured service provider's /health_check and
// persists one aggregate snapshot. Nodes that fail to respond, return a
// non-2xx status or unparsable JSON are skipped.
type Scraper struct {
	providers []config.ServiceProvider
	client    *http.Client
	limiter   *rate.Limiter
	store     SnapshotStore
	completed CompletionRecorder
	logger    *zap.Logger
}

func NewScraper(providers []config.ServiceProvider, store SnapshotStore, completed CompletionRecorder, logger *zap.Logger) *Scraper {
	return &Scraper{
		providers: providers,
		client:    &http.Client{Timeout: scrapeTimeout},
		// Spread requests out so a large fleet is not hit all at once.
		limiter:   rate.NewLimiter(rate.Limit(20), 5),
		store:     store,
		completed: completed,
		logger:    logger.Named("fleet_scraper"),
	}
}

// Run executes one scrape pass and persists the aggregate snapshot.
func (s *Scraper) Run(ctx context.Context) error {
	stats, err := s.Scrape(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"nodes":      stats,
		"node_count": len(s.providers),
		"responding": len(stats),
		"scraped_at": time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := s.store.UpsertStatusSnapshot(ctx, SnapshotKind, payload); err != nil {
		return err
	}
	if s.completed != nil {
		if err := s.completed.SetLastCompletion(ctx, cache.FleetScrapeCompletionKey, time.Now()); err != nil {
			s.logger.Warn("failed to record completion", zap.Error(err))
		}
	}
	s.logger.Info("fleet scrape complete",
		zap.Int("responding", len(stats)),
		zap.Int("total", len(s.providers)))
	return nil
}

// Scrape polls every provider, skipping failures.
func (s *Scraper) Scrape(ctx context.Context) ([]NodeStats, error) {
	stats := make([]NodeStats, 0, len(s.providers))
	for _, sp := range s.providers {
		if err := s.limiter.Wait(ctx); err != nil {
			return stats, err
		}
		health, err := s.fetchHealth(ctx, sp.Endpoint)
		if err != nil {
			metrics.FleetScrapeFailures.Inc()
			s.logger.Debug("skipping node",
				zap.Int64("sp_id", sp.SPID),
				zap.String("endpoint", sp.Endpoint),
				zap.Error(err))
			continue
		}
		metrics.FleetNodesScraped.Inc()
		stats = append(stats, NodeStats{
			SPID:                 sp.SPID,
			Endpoint:             sp.Endpoint,
			Version:              health.Version.Version,
			BlockDifference:      health.Data.BlockDifference,
			DatabaseSizeGB:       gbSize(health.Data.DatabaseSize),
			FilesystemSizeGB:     gbSize(health.Data.FilesystemSize),
			FilesystemUsedGB:     gbSize(health.Data.FilesystemUsed),
			FilesystemFreeGB:     gbSize(health.Data.FilesystemSize - min(health.Data.FilesystemUsed, health.Data.FilesystemSize)),
			MeetsMinRequirements: health.Data.MeetsMinRequirements,
			CPUCount:             health.Data.NumberOfCPUs,
			MemoryGB:             gbSize(health.Data.TotalMemory),
			MemoryUsedGB:         gbSize(health.Data.UsedMemory),
			MemoryFreeGB:         gbSize(health.Data.TotalMemory - min(health.Data.UsedMemory, health.Data.TotalMemory)),
			MemoryRedisGB:        gbSize(health.Data.RedisTotalMemory),
		})
	}
	return stats, nil
}

func (s *Scraper) fetchHealth(ctx context.Context, endpoint string) (*healthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health_check", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "discovery-fleet-scraper/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("health_check status: %s", resp.Status)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode health_check: %w", err)
	}
	return &health, nil
}

func gbSize(bytes uint64) int {
	return int(math.Round(float64(bytes) / (1 << 30)))
}
