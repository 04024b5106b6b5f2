// Package api serves read-only operator endpoints over the trading loop's
// status snapshot.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/pquerna/otp/totp"

	sqlitestore "pullback-engine/internal/store/sqlite"
	"pullback-engine/internal/trader"
)

// AccessCodeHeader carries the TOTP code when the API is gated.
const AccessCodeHeader = "X-Access-Code"

const (
	defaultFillLimit = 50
	maxFillLimit     = 1000
)

// StatusProvider returns the loop's current status.
type StatusProvider interface {
	Status() trader.Status
}

// FillSource reads archived fills, newest first.
type FillSource interface {
	Fills(limit int) ([]sqlitestore.FillRecord, error)
}

// Options configures optional parts of the router.
type Options struct {
	// TOTPSecret gates every endpoint except health behind a TOTP code.
	// Empty disables the gate.
	TOTPSecret string
	Fills      FillSource   // nil disables /api/v1/fills
	Health     http.Handler // nil serves a static ok
	now        func() time.Time
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(st StatusProvider, opts Options) *http.ServeMux {
	if opts.now == nil {
		opts.now = time.Now
	}
	mux := http.NewServeMux()
	gate := func(h http.HandlerFunc) http.Handler { return requireTOTP(opts, h) }

	if opts.Health != nil {
		mux.Handle("GET /api/v1/health", opts.Health)
	} else {
		mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}

	mux.Handle("GET /api/v1/status", gate(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, st.Status())
	}))

	mux.Handle("GET /api/v1/positions", gate(func(w http.ResponseWriter, r *http.Request) {
		s := st.Status()
		writeJSON(w, http.StatusOK, map[string]any{
			"positions": s.Positions,
			"pnl":       s.PnL,
		})
	}))

	mux.Handle("GET /api/v1/orders", gate(func(w http.ResponseWriter, r *http.Request) {
		s := st.Status()
		writeJSON(w, http.StatusOK, map[string]any{
			"total":  s.OrderCount,
			"orders": s.Orders,
		})
	}))

	mux.Handle("GET /api/v1/bars/latest", gate(func(w http.ResponseWriter, r *http.Request) {
		s := st.Status()
		if s.LastBar == nil {
			writeError(w, http.StatusNotFound, "no bars yet")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"bar":    s.LastBar,
			"signal": s.LastSignal,
			"reason": s.LastReason,
		})
	}))

	mux.Handle("GET /api/v1/fills", gate(func(w http.ResponseWriter, r *http.Request) {
		if opts.Fills == nil {
			writeError(w, http.StatusNotFound, "fill archive disabled")
			return
		}
		limit := defaultFillLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxFillLimit {
				writeError(w, http.StatusBadRequest, "limit must be 1.."+strconv.Itoa(maxFillLimit))
				return
			}
			limit = n
		}
		fills, err := opts.Fills.Fills(limit)
		if err != nil {
			log.Printf("[api] read fills: %v", err)
			writeError(w, http.StatusInternalServerError, "fill archive unavailable")
			return
		}
		writeJSON(w, http.StatusOK, fills)
	}))

	return mux
}

func requireTOTP(opts Options, next http.Handler) http.Handler {
	if opts.TOTPSecret == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.Header.Get(AccessCodeHeader)
		if code == "" {
			writeError(w, http.StatusUnauthorized, "missing "+AccessCodeHeader)
			return
		}
		ok, err := totp.ValidateCustom(code, opts.TOTPSecret, opts.now().UTC(), totp.ValidateOpts{
			Period: 30,
			Skew:   1,
			Digits: 6,
		})
		if err != nil || !ok {
			writeError(w, http.StatusForbidden, "invalid access code")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Server runs the operator API.
type Server struct {
	srv *http.Server
}

// NewServer creates an API server on addr.
func NewServer(addr string, h http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[api] listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[api] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Printf("[api] shutdown: %v", err)
	}
}
