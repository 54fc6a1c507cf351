// Package download serves archives through signed, time-limited links.
package download

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/ports"
)

// Server streams archives from the backup directory to holders of a valid
// download token.
type Server struct {
	tokens     ports.TokenAuthority
	backupDir  string
	identifier string
	log        zerolog.Logger

	rateLimit  int
	rateWindow time.Duration

	registry  *prometheus.Registry
	downloads *prometheus.CounterVec
	bytesSent prometheus.Counter
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit limits each client IP to requests per window. A limit of
// zero disables rate limiting.
func WithRateLimit(requests int, window time.Duration) Option {
	return func(s *Server) {
		s.rateLimit = requests
		s.rateWindow = window
	}
}

// Default rate limit for download requests per client IP.
const (
	DefaultRateLimit  = 30
	DefaultRateWindow = time.Minute
)

// NewServer creates a download server for the archives in backupDir.
func NewServer(tokens ports.TokenAuthority, backupDir, identifier string, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		tokens:     tokens,
		backupDir:  backupDir,
		identifier: identifier,
		log:        log.With().Str("component", "download").Logger(),
		rateLimit:  DefaultRateLimit,
		rateWindow: DefaultRateWindow,
		registry:   prometheus.NewRegistry(),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitebak_downloads_total",
			Help: "Download requests by result",
		}, []string{"result"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitebak_download_bytes_total",
			Help: "Archive bytes served",
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry.MustRegister(s.downloads, s.bytesSent)
	return s
}

// Router returns the HTTP routes of the server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLog)
	r.Use(chimiddleware.Recoverer)

	r.Group(func(r chi.Router) {
		if s.rateLimit > 0 {
			r.Use(httprate.LimitByIP(s.rateLimit, s.rateWindow))
		}
		r.Get(catalog.DownloadPath, s.Download)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

// Download handles GET /download?t=<token>.
func (s *Server) Download(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("t")
	if token == "" {
		s.downloads.WithLabelValues("forbidden").Inc()
		http.Error(w, "missing token", http.StatusForbidden)
		return
	}

	filename, err := s.tokens.ValidateToken(token)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("rejected download token")
		s.downloads.WithLabelValues("forbidden").Inc()
		http.Error(w, "invalid or expired link", http.StatusForbidden)
		return
	}

	// The payload names a file directly inside the backup directory.
	if filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) ||
		!catalog.IsSiteArchive(filename, s.identifier) {
		s.log.Warn().Str("filename", filename).Msg("token names a file outside the backup directory")
		s.downloads.WithLabelValues("forbidden").Inc()
		http.Error(w, "invalid or expired link", http.StatusForbidden)
		return
	}

	path := filepath.Join(s.backupDir, filename)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.downloads.WithLabelValues("not_found").Inc()
			http.Error(w, "archive not found", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Str("path", path).Msg("opening archive")
		s.downloads.WithLabelValues("error").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		s.downloads.WithLabelValues("not_found").Inc()
		http.Error(w, "archive not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Cache-Control", "no-store")
	ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
	http.ServeContent(ww, r, filename, info.ModTime(), f)
	s.downloads.WithLabelValues(serveResult(ww.Status())).Inc()
	s.bytesSent.Add(float64(ww.BytesWritten()))
}

// serveResult labels the status http.ServeContent answered with.
func serveResult(status int) string {
	switch status {
	case http.StatusOK:
		return "ok"
	case http.StatusPartialContent:
		return "partial"
	case http.StatusNotModified:
		return "not_modified"
	case http.StatusRequestedRangeNotSatisfiable:
		return "bad_range"
	default:
		return "error"
	}
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
