package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/RahulBansal123/audius-protocol/internal/config"
	"github.com/RahulBansal123/audius-protocol/internal/eventbus"
	"github.com/RahulBansal123/audius-protocol/internal/metrics"
	"github.com/RahulBansal123/audius-protocol/internal/models"
	"github.com/RahulBansal123/audius-protocol/internal/queries"
)

// Store is the repository surface the API reads from.
type Store interface {
	queries.HistoryStore
	queries.BalanceStore
	queries.FollowerStore
	queries.PlayStore
	GetLatestIndexedBlock(ctx context.Context) (number uint64, blockhash string, err error)
	GetStatusSnapshot(ctx context.Context, kind string) (*models.StatusSnapshot, error)
	Ping(ctx context.Context) error
	ConnStats() (total, idle, max int32)
}

// Cache is the Redis surface the API reads from.
type Cache interface {
	queries.RefreshQueue
	SecondsSinceCompletion(ctx context.Context, key string, now time.Time) (*int64, error)
	GetLatestChainBlock(ctx context.Context) (number uint64, hash string, ok bool, err error)
	CacheLatestChainBlock(ctx context.Context, number uint64, hash string, ttl time.Duration) error
	Health(ctx context.Context) error
}

// Chain reads the chain tip for /health_check when the cached value is
// missing.
type Chain interface {
	LatestBlock(ctx context.Context) (uint64, string, error)
}

type Server struct {
	store      Store
	cache      Cache
	chain      Chain
	bus        *eventbus.Bus
	cfg        *config.Config
	logger     *zap.Logger
	hub        *Hub
	httpServer *http.Server
}

func NewServer(store Store, cacheClient Cache, chain Chain, bus *eventbus.Bus, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		store:  store,
		cache:  cacheClient,
		chain:  chain,
		bus:    bus,
		cfg:    cfg,
		logger: logger.Named("api"),
		hub:    newHub(logger),
	}

	r := mux.NewRouter()
	r.Use(commonMiddleware)
	r.Use(rateLimitMiddleware)
	r.Use(metricsMiddleware)

	s.registerRoutes(r)

	s.httpServer = &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.APIPort),
		Handler: r,
	}
	return s
}

func (s *Server) registerRoutes(r *mux.Router) {
	r.HandleFunc("/health_check", s.handleHealthCheck).Methods("GET", "OPTIONS")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/v1/users/{id}/history", s.handleUserHistory).Methods("GET", "OPTIONS")
	r.HandleFunc("/v1/users/{id}/followers", s.handleUserFollowers).Methods("GET", "OPTIONS")
	r.HandleFunc("/v1/users/balances", s.handleUserBalances).Methods("GET", "OPTIONS")
	r.HandleFunc("/v1/plays/{signature}", s.handlePlayBySignature).Methods("GET", "OPTIONS")
	r.HandleFunc("/v1/tracks/milestones", s.handleTrackMilestones).Methods("GET", "OPTIONS")
	r.HandleFunc("/v1/fleet/stats", s.handleFleetStats).Methods("GET", "OPTIONS")

	r.HandleFunc("/ws/plays", s.handlePlaysWebSocket).Methods("GET")

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(newAuthMiddleware(s.cfg.AdminJWTSecret).middleware)
	admin.HandleFunc("/refresh-balances", s.handleAdminRefreshBalances).Methods("POST", "OPTIONS")
}

func (s *Server) Start() error {
	go s.hub.run(s.bus)
	s.logger.Info("api listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.stop()
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so websocket upgrades
// work behind the metrics wrapper.
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rec.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		metrics.HTTPRequestDuration.
			WithLabelValues(route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
