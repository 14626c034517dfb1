package config

import "time"

// RateLimitConfig configures the redis token bucket placed in front of the
// seat toggle endpoint.  A browser hammering the seat map would otherwise
// grow the toggle queue without bound; the bucket caps how fast one user can
// feed it.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int           // bucket size (burst)
	RefillTokens   int           // tokens added per RefillInterval
	RefillInterval time.Duration
	TTL            time.Duration // idle buckets expire after this
	KeyStrategy    string        // ip, user, route, ip_user, user_route, ...
	Prefix         string
}

// LoadRateLimitConfig reads RATE_LIMIT_*.  The defaults allow a burst of 20
// toggles and four more per second.
func LoadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 20),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 4),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "user_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl:booking"),
	}.normalize()
}

// normalize clamps values so the refill rate is never zero and a bucket
// outlives at least a few refill intervals.
func (c RateLimitConfig) normalize() RateLimitConfig {
	c.Capacity = max(c.Capacity, 1)
	c.RefillTokens = max(c.RefillTokens, 1)
	if c.RefillInterval < time.Millisecond {
		c.RefillInterval = time.Second
	}
	c.TTL = max(c.TTL, 5*c.RefillInterval)
	return c
}
