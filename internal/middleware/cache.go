package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-booking/internal/config"
)

// teeWriter copies what the handler writes into buf until the copy would
// exceed max (0 = no limit), after which the response is marked too big to
// cache.
type teeWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	max    int64
	tooBig bool
}

func (w *teeWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *teeWriter) Write(b []byte) (int, error) {
	if !w.tooBig {
		if w.max > 0 && int64(w.buf.Len()+len(b)) > w.max {
			w.tooBig = true
			w.buf.Reset()
		} else {
			w.buf.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// cacheKeyFrom keys on the parts of the request named by the strategy.  The
// parts are hashed so long query strings do not bloat redis keys.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	strategy := strings.ToLower(cfg.KeyStrategy)

	h := sha256.New()
	if strings.HasPrefix(strategy, "method_") {
		h.Write([]byte(r.Method + " "))
	}
	h.Write([]byte(c.Path()))
	if strategy == "" || strings.HasSuffix(strategy, "_query") {
		h.Write([]byte("?" + r.URL.RawQuery))
	}
	return cfg.Prefix + ":" + hex.EncodeToString(h.Sum(nil)[:16])
}

type cachedResponse struct {
	Status int         `json:"s"`
	Header http.Header `json:"h"`
	Body   []byte      `json:"b"`
}

func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	return json.Marshal(cachedResponse{Status: status, Header: header, Body: body})
}

// decodePayload reports ok=false for anything that is not a complete entry.
func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	var r cachedResponse
	if err := json.Unmarshal(bs, &r); err != nil || r.Status == 0 {
		return 0, nil, nil, false
	}
	if r.Header == nil {
		r.Header = http.Header{}
	}
	return r.Status, r.Header, r.Body, true
}

// NewRedisCache caches successful responses of the browse endpoints
// (showtime listing, combo catalogue).  Headers are stored with the body so
// a hit is byte-identical to the original response.  Only complete 200s are
// stored.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKeyFrom(cfg, c)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					return replay(c, status, hdr, body)
				}
			}

			w := &teeWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, max: int64(cfg.MaxBodyBytes)}
			c.Response().Writer = w
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if w.status != http.StatusOK || w.tooBig {
				return nil
			}
			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			hdr.Del(RequestIDHeader)
			if payload, err := encodePayload(w.status, hdr, w.buf.Bytes()); err == nil {
				_ = rdb.Set(context.WithoutCancel(ctx), key, payload, ttl).Err()
			}
			return nil
		}
	}
}

func replay(c echo.Context, status int, hdr http.Header, body []byte) error {
	out := c.Response().Header()
	for k, vals := range hdr {
		if strings.EqualFold(k, echo.HeaderContentLength) {
			continue
		}
		for _, v := range vals {
			out.Add(k, v)
		}
	}
	out.Set("X-Cache", "HIT")
	c.Response().WriteHeader(status)
	_, err := c.Response().Write(body)
	return err
}
