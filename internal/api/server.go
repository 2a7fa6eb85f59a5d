// Package api serves loaded cases over HTTP as JSON, CSV and HTML charts.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/banshee-data/reservoir/internal/db"
	"github.com/banshee-data/reservoir/internal/httputil"
	"github.com/banshee-data/reservoir/internal/monitoring"
	"github.com/banshee-data/reservoir/internal/simcase"
	"github.com/banshee-data/reservoir/internal/summary"
	"github.com/banshee-data/reservoir/internal/timeutil"
	"github.com/banshee-data/reservoir/internal/version"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// CaseStore is the persistence the server needs beyond loading cases.
type CaseStore interface {
	ListCases(ctx context.Context) ([]db.Case, error)
	SaveVector(ctx context.Context, caseID string, v summary.Vector) error
}

// Server answers HTTP requests for cases addressed by ID.
type Server struct {
	cases     *simcase.Resolver
	store     CaseStore
	frequency summary.Frequency
}

// NewServer creates a server. freq is used when a request names no frequency.
func NewServer(cases *simcase.Resolver, store CaseStore, freq summary.Frequency) *Server {
	return &Server{cases: cases, store: store, frequency: freq}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(clock timeutil.Clock, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := timeutil.StartStopwatch(clock)
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			sw.Millis(),
		)
	})
}

// ServeMux returns the routes. Callers wrap it with LoggingMiddleware and may
// attach further routes (the database admin pages) before serving.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/cases", s.listCases)
	mux.HandleFunc("GET /api/cases/{id}/grid", s.showGrid)
	mux.HandleFunc("GET /api/cases/{id}/cells/{ijk}", s.showCell)
	mux.HandleFunc("GET /api/cases/{id}/vectors", s.listVectors)
	mux.HandleFunc("GET /api/cases/{id}/vectors/{name}", s.showVector)
	mux.HandleFunc("POST /api/cases/{id}/vectors/{name}", s.setVector)
	mux.HandleFunc("GET /api/cases/{id}/regions/{prop}/{value}/{op}", s.regionAggregate)
	mux.HandleFunc("GET /api/cases/{id}/export", s.exportCase)
	mux.HandleFunc("POST /api/cases/{id}/reload", s.reloadCase)
	mux.HandleFunc("DELETE /api/cases/{id}", s.closeCase)
	mux.HandleFunc("GET /charts/{id}/{name}", s.vectorChart)
	mux.HandleFunc("GET /api/version", showVersion)
	return mux
}

func showVersion(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
