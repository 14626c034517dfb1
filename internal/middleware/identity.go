package middleware

// identity.go holds the context keys JWTAuth fills in and the helpers that
// read them back, plus the resolver that maps a token without a numeric
// user claim to the upstream user id.

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// Context keys set by JWTAuth.
const (
	CtxUserID = "user_id" // int64
	CtxToken  = "token"   // raw bearer token, forwarded upstream
)

// UserID returns the authenticated user's id, or 0 when the request did
// not pass through JWTAuth.
func UserID(c echo.Context) int64 {
	if v, ok := c.Get(CtxUserID).(int64); ok {
		return v
	}
	return 0
}

// Token returns the raw bearer token of the request.
func Token(c echo.Context) string {
	s, _ := c.Get(CtxToken).(string)
	return s
}

// identityKey names the caller for rate limiting: the user id when known,
// "anon" otherwise.
func identityKey(c echo.Context) string {
	if id := UserID(c); id != 0 {
		return strconv.FormatInt(id, 10)
	}
	return "anon"
}

// UserResolver maps a bearer token to the upstream user id.
type UserResolver func(ctx context.Context, token string) (int64, error)

// ProfileSource is the slice of the cinema API client the resolver needs.
type ProfileSource interface {
	MyInfo(ctx context.Context) (model.User, error)
}

// NewUserResolver asks the API who the token belongs to (withToken puts the
// token on the outgoing call) and remembers the answer in redis for ttl,
// keyed by a hash of the token.  A nil client disables the cache.
func NewUserResolver(api ProfileSource, withToken func(context.Context, string) context.Context, rdb *redis.Client, ttl time.Duration) UserResolver {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return func(ctx context.Context, token string) (int64, error) {
		sum := sha256.Sum256([]byte(token))
		key := "ident:" + hex.EncodeToString(sum[:])
		if rdb != nil {
			// A miss or a redis error falls through to the API.
			if id, err := rdb.Get(ctx, key).Int64(); err == nil && id > 0 {
				return id, nil
			}
		}
		u, err := api.MyInfo(withToken(ctx, token))
		if err != nil {
			return 0, err
		}
		if u.ID <= 0 {
			return 0, fmt.Errorf("profile of %q carries no user id", u.Username)
		}
		if rdb != nil {
			_ = rdb.Set(ctx, key, u.ID, ttl).Err()
		}
		return u.ID, nil
	}
}
