package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/config"
)

// drip keeps a fractional token count that accrues continuously at rate
// tokens per millisecond, capped at capacity.
// KEYS[1] bucket; ARGV now_ms, capacity, rate, ttl_ms.
// Returns {allowed, whole tokens left, ms until the next token}.
var drip = redis.NewScript(`
local b = redis.call('HMGET', KEYS[1], 'level', 'at')
local now = tonumber(ARGV[1])
local cap = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local level = tonumber(b[1]) or cap
local at = tonumber(b[2]) or now
level = math.min(cap, level + math.max(0, now - at) * rate)
local ok, wait = 0, 0
if level >= 1 then
  ok = 1
  level = level - 1
else
  wait = math.ceil((1 - level) / rate)
end
redis.call('HSET', KEYS[1], 'level', tostring(level), 'at', now)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {ok, math.floor(level), wait}
`)

type verdict struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

type bucket struct {
	rdb      *redis.Client
	capacity int
	rate     float64 // tokens per millisecond
	ttl      time.Duration
}

func (b bucket) take(ctx context.Context, key string) (verdict, error) {
	res, err := drip.Run(ctx, b.rdb, []string{key},
		time.Now().UnixMilli(), b.capacity, strconv.FormatFloat(b.rate, 'f', -1, 64), b.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return verdict{}, err
	}
	if len(res) != 3 {
		return verdict{}, fmt.Errorf("unexpected bucket reply %v", res)
	}
	return verdict{allowed: res[0] == 1, remaining: res[1], retry: time.Duration(res[2]) * time.Millisecond}, nil
}

// NewTokenBucket limits how fast one caller can hit the wrapped routes.  It
// sits in front of the seat toggle endpoint, whose queue is unbounded.  The
// limiter fails open: without redis, or on a script error, requests pass.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if log == nil {
		log = zap.NewNop()
	}
	b := bucket{
		rdb:      rdb,
		capacity: cfg.Capacity,
		rate:     float64(cfg.RefillTokens) / float64(cfg.RefillInterval.Milliseconds()),
		ttl:      cfg.TTL,
	}
	limit := strconv.Itoa(cfg.Capacity)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			v, err := b.take(c.Request().Context(), key)
			if err != nil {
				log.Warn("rate limit check failed", zap.String("key", key), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(v.remaining, 10))
			if v.allowed {
				return next(c)
			}

			secs := int(math.Ceil(v.retry.Seconds()))
			h.Set("Retry-After", strconv.Itoa(secs))
			log.Debug("rate limited", zap.String("key", key), zap.Duration("retry", v.retry))
			return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many requests", "retry_after": secs})
		}
	}
}

// buildRateKey joins the request facets named by the key strategy, in the
// order given, e.g. "user_route" or "ip_user".  An unknown strategy keys on
// all three.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	facets := map[string]string{
		"ip":    ip,
		"user":  identityKey(c),
		"route": c.Request().Method + " " + c.Path(),
	}

	var sb strings.Builder
	sb.WriteString(cfg.Prefix)
	used := 0
	for _, name := range strings.Split(strings.ToLower(cfg.KeyStrategy), "_") {
		if v, ok := facets[name]; ok {
			sb.WriteString(":" + name + ":" + v)
			used++
		}
	}
	if used == 0 {
		for _, name := range []string{"ip", "user", "route"} {
			sb.WriteString(":" + name + ":" + facets[name])
		}
	}
	return sb.String()
}
