package transport

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/well-bot-agent/internal/logger"
)

// Middleware wraps an HTTP handler with one cross-cutting concern.
type Middleware interface {
	Wrap(next http.Handler) http.Handler
}

// Chain applies middlewares in declaration order: the first element is the
// outermost wrapper. Composition is explicit here so the request path reads
// top to bottom instead of inside out.
type Chain struct {
	stack []Middleware
}

func NewChain(mws ...Middleware) Chain {
	return Chain{stack: mws}
}

func (c Chain) Then(h http.Handler) http.Handler {
	for i := len(c.stack) - 1; i >= 0; i-- {
		h = c.stack[i].Wrap(h)
	}
	return h
}

// RequestLog logs method, path, status and latency for every request.
type RequestLog struct {
	Log *logger.Logger
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the underlying writer so WebSocket upgrades keep
// working on logged routes.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying writer does not support hijacking")
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (m RequestLog) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.Log.Info("http request: method=%s path=%s status=%d duration_ms=%d",
			r.Method, r.URL.Path, rec.status, time.Since(start).Milliseconds())
	})
}

// Recover converts handler panics into a 500 instead of killing the server.
type Recover struct {
	Log *logger.Logger
}

func (m Recover) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				m.Log.Error("handler panicked: path=%s panic=%v", r.URL.Path, p)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Auth enforces a static bearer key. An empty key disables the check.
type Auth struct {
	Key string
	Log *logger.Logger
}

func (m Auth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Key == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(m.Key)) != 1 {
			m.Log.Warn("unauthorized request: path=%s", r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
