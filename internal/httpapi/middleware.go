package httpapi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const userIDKey ctxKey = iota

var errNoSubject = errors.New("token has no user id")

// maxSubject bounds float claims to integers a float64 represents exactly.
const maxSubject = 1 << 53

// userID returns the authenticated user. Only valid behind authenticate.
func userID(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

// authenticate accepts an HS256 bearer token and takes the user id from the
// sub claim, falling back to nameid.
func (s *Server) authenticate(next http.Handler) http.Handler {
	secret := []byte(s.cfg.JWTSecret)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// An empty HMAC key verifies tokens anyone can sign.
		if len(secret) == 0 {
			writeMessage(w, http.StatusUnauthorized, "authentication is not configured")
			return
		}
		parts := strings.Fields(r.Header.Get("Authorization"))
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			writeMessage(w, http.StatusUnauthorized, "missing or invalid authorization header")
			return
		}
		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			writeMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}
		id, err := subject(claims)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "invalid user token")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func subject(claims jwt.MapClaims) (int64, error) {
	for _, name := range []string{"sub", "nameid"} {
		switch v := claims[name].(type) {
		case string:
			if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
				return id, nil
			}
		case float64:
			if v > 0 && v <= maxSubject && v == math.Trunc(v) {
				return int64(v), nil
			}
		}
	}
	return 0, errNoSubject
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeMessage(w, http.StatusTooManyRequests, "too many checkout requests, retry shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observe records request counts and latency per route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = r.Method + " " + rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.Observe(route, strconv.Itoa(status), start)
	})
}
