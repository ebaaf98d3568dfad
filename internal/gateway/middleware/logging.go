package middleware

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"prettycode/pkg/logger"
)

// statusWriter records the status code written by the handler. It passes
// Hijack through so the /ws upgrade still works behind the middleware chain.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Logging logs one line per request. Health probes are not logged; 5xx
// responses log at warn so they stand out at the default level.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		if r.URL.Path == "/health" {
			return
		}

		evt := logger.Info()
		if sw.status >= http.StatusInternalServerError {
			evt = logger.Warn()
		}
		evt.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("latency", time.Since(start)).
			Str("client", clientAddr(r)).
			Msg("HTTP request")
	})
}

// clientAddr identifies the peer for logging and rate limiting. The UI dev
// server proxies API calls, so a forwarded address wins over RemoteAddr.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
