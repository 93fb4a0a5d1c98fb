package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"line-monitor/internal/scheduler"
)

// RedisPublisher mirrors every successful refresh to a latest-value key and
// appends it to a stream for other consumers.
type RedisPublisher struct {
	kv           KVStore
	cacheKey     string
	streamKey    string
	streamMaxLen int64
	ttl          time.Duration
	logger       *zap.Logger
}

// NewRedisPublisher ttl should outlive at least one refresh interval
func NewRedisPublisher(kv KVStore, cacheKey, streamKey string, streamMaxLen int64, ttl time.Duration, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		kv:           kv,
		cacheKey:     cacheKey,
		streamKey:    streamKey,
		streamMaxLen: streamMaxLen,
		ttl:          ttl,
		logger:       logger,
	}
}

// OnRefresh failed refreshes are skipped so the cached value stays the last good one
func (p *RedisPublisher) OnRefresh(ctx context.Context, r scheduler.Refresh) {
	if r.Err != nil {
		return
	}
	if err := p.Publish(ctx, r); err != nil {
		p.logger.Error("Failed to publish refresh to redis",
			zap.String("run_id", r.RunID),
			zap.Error(err),
		)
	}
}

// Publish writes r to the cache key and the stream
func (p *RedisPublisher) Publish(ctx context.Context, r scheduler.Refresh) error {
	jsonData, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh: %w", err)
	}

	if err := p.kv.Set(ctx, p.cacheKey, string(jsonData), p.ttl); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	if p.streamKey != "" {
		if _, err := p.kv.AppendStream(ctx, p.streamKey, p.streamMaxLen, r.Snapshot); err != nil {
			return fmt.Errorf("failed to append to stream: %w", err)
		}
	}

	p.logger.Debug("Published refresh to redis",
		zap.String("run_id", r.RunID),
		zap.String("key", p.cacheKey),
	)
	return nil
}

// Latest reads the cached refresh back
func (p *RedisPublisher) Latest(ctx context.Context) (*scheduler.Refresh, error) {
	raw, err := p.kv.Get(ctx, p.cacheKey)
	if err != nil {
		return nil, err
	}
	var r scheduler.Refresh
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached refresh: %w", err)
	}
	return &r, nil
}
