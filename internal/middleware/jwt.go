package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/cinemaapi"
)

// JWTAuth validates the Bearer token issued by the cinema API (HS256,
// shared secret) and stores the caller's user id and the raw token in the
// context.  The id is read from the userId, user_id or numeric sub claim;
// tokens that carry none (the API puts the username in sub) are resolved
// through resolve.  The raw token is kept because every upstream call made
// on the user's behalf must carry it.
func JWTAuth(secret string, resolve UserResolver) echo.MiddlewareFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	key := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }
	deny := func(c echo.Context, status int, msg string) error {
		return c.JSON(status, echo.Map{"error": msg})
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, found := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if !found || raw == "" {
				return deny(c, http.StatusUnauthorized, "missing bearer token")
			}

			claims := jwt.MapClaims{}
			tok, err := parser.ParseWithClaims(raw, claims, key)
			if err != nil || !tok.Valid {
				return deny(c, http.StatusUnauthorized, "invalid token")
			}

			id, ok := userIDFromClaims(claims)
			if !ok {
				if resolve == nil {
					return deny(c, http.StatusUnauthorized, "token carries no user id")
				}
				id, err = resolve(c.Request().Context(), raw)
				switch {
				case errors.Is(err, cinemaapi.ErrUnauthorized):
					return deny(c, http.StatusUnauthorized, "session expired")
				case err != nil:
					return deny(c, http.StatusBadGateway, "cannot resolve user")
				}
			}

			c.Set("user", tok)
			c.Set(CtxUserID, id)
			c.Set(CtxToken, raw)
			return next(c)
		}
	}
}

// userIDFromClaims looks for a positive numeric user id.  JSON numbers
// decode as float64; string claims must parse as integers.
func userIDFromClaims(claims jwt.MapClaims) (int64, bool) {
	for _, k := range []string{"userId", "user_id", "sub"} {
		switch v := claims[k].(type) {
		case float64:
			if v > 0 && v == float64(int64(v)) {
				return int64(v), true
			}
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}
