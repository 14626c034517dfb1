// Package store persists the id of each user's active (unpaid) bill so
// the checkout stage can pick it up after a reload or a restart of the
// service.  Three backends share one contract: Redis (default), MySQL and
// an in-process map for development and tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Load when no bill id is stored for the user.
var ErrNotFound = errors.New("store: no active bill")

// ActiveBills is implemented by every backend.
type ActiveBills interface {
	Save(ctx context.Context, userID, billID int64) error
	Load(ctx context.Context, userID int64) (int64, error)
	Delete(ctx context.Context, userID int64) error
}

// Kind names a backend as configured by ACTIVE_BILL_STORE.
type Kind string

const (
	KindRedis  Kind = "redis"
	KindMySQL  Kind = "mysql"
	KindMemory Kind = "memory"
)

// ParseKind accepts the configured backend name; empty means redis.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindRedis, nil
	case KindRedis, KindMySQL, KindMemory:
		return k, nil
	default:
		return "", fmt.Errorf("store: unknown backend %q", s)
	}
}

var (
	_ ActiveBills = (*RedisStore)(nil)
	_ ActiveBills = (*MySQLStore)(nil)
	_ ActiveBills = (*MemoryStore)(nil)
)

// expiry returns the absolute expiry for a TTL; zero TTL never expires.
func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
