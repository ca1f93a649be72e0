package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/datalith-io/lakeq/internal/config"
	dbRedis "github.com/datalith-io/lakeq/internal/db/redis"
	"github.com/datalith-io/lakeq/internal/index/flat"
	"github.com/datalith-io/lakeq/internal/index/memfts"
	logpkg "github.com/datalith-io/lakeq/internal/logger"
	"github.com/datalith-io/lakeq/internal/metrics"
	"github.com/datalith-io/lakeq/internal/registry"
	"github.com/datalith-io/lakeq/internal/repository/embcache"
	"github.com/datalith-io/lakeq/internal/transport/httpapi"
	openaiEmb "github.com/datalith-io/lakeq/internal/transport/openai"
	"github.com/datalith-io/lakeq/internal/usecase/search"
	"github.com/datalith-io/lakeq/internal/version"

	pqds "github.com/datalith-io/lakeq/internal/db/parquet"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting lakeq server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("dataset_dir", cfg.Dataset.Dir),
	)

	metrics.Register()

	ds, err := pqds.Open(cfg.Dataset.Dir, pqds.WithVectorColumns(cfg.Dataset.VectorColumn))
	if err != nil {
		logger.Fatal("Failed to open dataset", zap.Error(err))
	}
	vindex, err := flat.New(ds, cfg.Dataset.VectorColumn)
	if err != nil {
		logger.Fatal("Failed to create vector index", zap.Error(err))
	}

	ctx := context.Background()

	var fts search.FTSIndex
	if hasColumn(ds, cfg.Dataset.TextColumn) {
		ix, err := memfts.FromScanner(ctx, ds, cfg.Dataset.TextColumn)
		if err != nil {
			logger.Fatal("Failed to build full-text index", zap.Error(err))
		}
		fts = ix
		logger.Info("Full-text index built", zap.String("column", cfg.Dataset.TextColumn))
	} else {
		logger.Warn("Dataset has no text column, full-text search disabled",
			zap.String("column", cfg.Dataset.TextColumn))
	}

	reg := registry.New()
	if cfg.Embedding.Provider != "" {
		fn, closeStore, err := buildEmbedder(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("Failed to build embedder", zap.Error(err))
		}
		if closeStore != nil {
			defer closeStore()
		}
		if err := reg.Register(cfg.Dataset.VectorColumn, fn); err != nil {
			logger.Fatal("Failed to register embedding function", zap.Error(err))
		}
		logger.Info("Embedder registered",
			zap.String("provider", cfg.Embedding.Provider),
			zap.String("model", cfg.Embedding.Model),
			zap.String("column", cfg.Dataset.VectorColumn),
		)
	}

	svc := search.New(ds, vindex, fts, registryLookup{reg})
	server := httpapi.NewServer(svc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Mount("/", server.Routes())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Retried.
func buildEmbedder(
	ctx context.Context, cfg config.Config, logger *zap.Logger,
) (registry.EmbeddingFunction, func(), error) {
	base := openaiEmb.New(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	var fn registry.EmbeddingFunction = base
	var closeStore func()
	if len(cfg.Cache.Addrs) > 0 {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create cache store: %w", err)
		}
		if err := store.WaitForReady(ctx, 10*time.Second); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("cache store not ready: %w", err)
		}
		cached, err := embcache.New(embcache.Config{
			Inner:  base,
			Store:  store,
			TTL:    time.Duration(cfg.Cache.TTLSec) * time.Second,
			Logger: logger,
		})
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		fn = cached
		closeStore = store.Close
		logger.Info("Embedding cache enabled", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	return registry.WithRetry(fn, registry.RetryConfig{}), closeStore, nil
}

// registryLookup exposes the registry through the query service's
// lookup contract.
type registryLookup struct {
	r *registry.Registry
}

func (l registryLookup) Get(vectorColumn string) (search.EmbeddingFunction, bool) {
	fn, ok := l.r.Get(vectorColumn)
	if !ok {
		return nil, false
	}
	return fn, true
}

func hasColumn(ds *pqds.Dataset, name string) bool {
	names, err := ds.ColumnNames()
	if err != nil {
		return false
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
