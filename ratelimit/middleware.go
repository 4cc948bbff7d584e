package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ClientID identifies the caller: the first X-Forwarded-For entry, otherwise
// the host part of the remote address.
func ClientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware limits next with l. Every response carries the
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset headers;
// requests over the limit get a 429 with a JSON error body.
func Middleware(l *Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := l.Allow(r.Context(), ClientID(r))
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetSeconds(), 10))
		if errors.Is(err, ErrTooManyRequests) {
			l.reporter.ReportException(err, map[string]string{"middleware": "rateLimit"})
			h.Set("Content-Type", "application/json")
			h.Set("Retry-After", strconv.FormatInt(max(info.ResetSeconds()-l.now().Unix(), 1), 10))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"Too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
