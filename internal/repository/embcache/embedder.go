// Package embcache wraps an embedding function with a byte KV cache so
// repeated query texts do not hit the provider again.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/datalith-io/lakeq/internal/db"
	"github.com/datalith-io/lakeq/internal/metrics"
	"github.com/datalith-io/lakeq/internal/registry"
)

// Store is the KV surface the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Embedder caches single-query embeddings keyed by a hash of the text.
type Embedder struct {
	inner  registry.EmbeddingFunction
	store  Store
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// Config configures the cache layer.
type Config struct {
	Inner  registry.EmbeddingFunction
	Store  Store
	TTL    time.Duration
	Prefix string
	Logger *zap.Logger
}

// New builds a caching embedder around an inner function.
func New(cfg Config) (*Embedder, error) {
	if cfg.Inner == nil {
		return nil, fmt.Errorf("inner embedding function is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "emb"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		inner:  cfg.Inner,
		store:  cfg.Store,
		ttl:    cfg.TTL,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// ComputeQueryEmbeddings returns the cached vector for the text when present,
// otherwise computes it through the inner function and stores the result.
// Cache failures degrade to a plain provider call.
func (e *Embedder) ComputeQueryEmbeddings(ctx context.Context, text string) ([][]float32, error) {
	key := e.cacheKey(text)

	data, err := e.store.Get(ctx, key)
	if err == nil {
		vec, decErr := bytesToVector(data)
		if decErr == nil {
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			return [][]float32{vec}, nil
		}
		e.logger.Warn("discarding corrupt cached embedding", zap.String("key", key), zap.Error(decErr))
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		e.logger.Warn("embedding cache read failed", zap.String("key", key), zap.Error(err))
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	vecs, err := e.inner.ComputeQueryEmbeddings(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 1 {
		if err := e.store.SetWithTTL(ctx, key, vectorToBytes(vecs[0]), e.ttl); err != nil {
			e.logger.Warn("embedding cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return vecs, nil
}

func (e *Embedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return e.prefix + ":" + hex.EncodeToString(sum[:])
}

// vectorToBytes encodes a vector as little-endian float32 bits.
func vectorToBytes(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// bytesToVector is the inverse of vectorToBytes.
func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid cached vector length %d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
