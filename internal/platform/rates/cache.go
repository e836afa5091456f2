package rates

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedSource caches rates in Redis in front of another source. A cache
// failure falls through to the inner source so rate lookups never depend on
// Redis being up.
type CachedSource struct {
	inner  Source
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedSource(inner Source, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedSource {
	return &CachedSource{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

func rateKey(base, quote string) string {
	return fmt.Sprintf("fxrate:%s:%s", base, quote)
}

func (s *CachedSource) Rate(ctx context.Context, base, quote string) (float64, error) {
	key := rateKey(base, quote)

	if cached, err := s.rdb.Get(ctx, key).Result(); err == nil {
		if rate, perr := strconv.ParseFloat(cached, 64); perr == nil && rate > 0 {
			return rate, nil
		}
	} else if err != redis.Nil {
		s.logger.WarnContext(ctx, "rate cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	rate, err := s.inner.Rate(ctx, base, quote)
	if err != nil {
		return 0, err
	}

	if err := s.rdb.Set(ctx, key, strconv.FormatFloat(rate, 'f', -1, 64), s.ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "rate cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return rate, nil
}

var _ Source = (*CachedSource)(nil)
