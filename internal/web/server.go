// Package web serves the upload form, the results page and a JSON analysis API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"iam-abuse-detector/internal/alerting"
	"iam-abuse-detector/internal/config"
	"iam-abuse-detector/internal/detection"
	sanitize "iam-abuse-detector/internal/errors"
	"iam-abuse-detector/internal/ingest"
	"iam-abuse-detector/internal/middleware"
	"iam-abuse-detector/internal/report"
	"iam-abuse-detector/internal/schema"
)

// FormField is the multipart field holding the uploaded log.
const FormField = "logfile"

// Upload form messages.
const (
	msgNoFile       = "No file uploaded"
	msgNoSelection  = "No selected file"
	msgUploadFailed = "Upload could not be read"
)

// Server handles the web interface.
type Server struct {
	loader     *ingest.Loader
	engine     *detection.Engine
	dispatcher *alerting.Dispatcher
	cfg        config.ServerConfig
	logger     *slog.Logger
	startTime  time.Time

	analysesTotal atomic.Uint64
	eventsTotal   atomic.Uint64
	alertsTotal   atomic.Uint64
	failuresTotal atomic.Uint64
}

// NewServer creates a server analyzing uploads with loader and engine.
func NewServer(cfg config.ServerConfig, loader *ingest.Loader, engine *detection.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		loader:    loader,
		engine:    engine,
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
	}
}

// WithDispatcher delivers the alerts of every analysis to d.
func (s *Server) WithDispatcher(d *alerting.Dispatcher) *Server {
	s.dispatcher = d
	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleUpload)
	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	limiter := middleware.NewRateLimiter(s.cfg.RateLimit, s.logger)

	var h http.Handler = mux
	h = limiter.Middleware(h)
	h = middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(), s.logger)(h)
	h = middleware.RequestLogger(s.logger)(h)
	return h
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.HTTPPort),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// analysis is the outcome of one uploaded log.
type analysis struct {
	events schema.EventCollection
	alerts []detection.Alert
}

// analyze loads and scans one upload.
func (s *Server) analyze(ctx context.Context, name string, r io.Reader) (*analysis, error) {
	if err := ingest.CheckExtension(name); err != nil {
		return nil, err
	}

	events, err := s.loader.Load(r)
	if err != nil {
		return nil, err
	}

	alerts, err := s.engine.Run(ctx, events)
	if err != nil {
		return nil, err
	}

	s.analysesTotal.Add(1)
	s.eventsTotal.Add(uint64(len(events)))
	s.alertsTotal.Add(uint64(len(alerts)))

	s.logger.Info("upload analyzed",
		"filename", name,
		"events", len(events),
		"alerts", len(alerts),
	)
	return &analysis{events: events, alerts: alerts}, nil
}

// deliver forwards alerts to the sinks. Failures are logged, never shown.
func (s *Server) deliver(ctx context.Context, alerts []detection.Alert) []alerting.DeliveryRecord {
	if s.dispatcher == nil {
		return nil
	}
	records, err := s.dispatcher.Dispatch(ctx, alerts)
	if err != nil {
		s.logger.Error("alert delivery failed", "error", err)
	}
	return records
}

// userErrors are the failures caused by the uploaded content.
var userErrors = append([]error{detection.ErrUnknownRole}, ingest.UserErrors...)

// statusFor maps an analysis error to an HTTP status.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr), errors.Is(err, ingest.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, detection.ErrUnknownRole):
		return http.StatusUnprocessableEntity
	}
	for _, target := range ingest.UserErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// readUpload extracts the uploaded log. The returned message is empty on
// success and user facing otherwise.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, int, string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)

	file, header, err := r.FormFile(FormField)
	if err == nil {
		if header.Filename == "" {
			file.Close()
			return nil, nil, http.StatusBadRequest, msgNoSelection
		}
		return file, header, 0, ""
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return nil, nil, http.StatusRequestEntityTooLarge, "Upload exceeds the size limit"
	case errors.Is(err, http.ErrMissingFile):
		// A file input left empty arrives as a plain form value.
		if r.MultipartForm != nil {
			if _, ok := r.MultipartForm.Value[FormField]; ok {
				return nil, nil, http.StatusBadRequest, msgNoSelection
			}
		}
		return nil, nil, http.StatusBadRequest, msgNoFile
	case errors.Is(err, http.ErrNotMultipart):
		return nil, nil, http.StatusBadRequest, msgNoFile
	}

	s.logger.Warn("failed to read upload", "error", err)
	return nil, nil, http.StatusBadRequest, msgUploadFailed
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, http.StatusOK, "")
}

func (s *Server) renderIndex(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := report.RenderIndex(w, msg); err != nil {
		s.logger.Error("failed to render index", "error", err)
	}
}

// handleUpload handles POST / from the upload form.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, status, msg := s.readUpload(w, r)
	if msg != "" {
		s.renderIndex(w, status, msg)
		return
	}
	defer file.Close()

	result, err := s.analyze(r.Context(), header.Filename, file)
	if err != nil {
		s.failuresTotal.Add(1)
		s.logger.Warn("upload rejected", "filename", header.Filename, "error", err)
		s.renderIndex(w, statusFor(err), sanitize.PublicMessage(err, userErrors...))
		return
	}
	s.deliver(r.Context(), result.alerts)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderHTML(w, report.NewResults(header.Filename, result.alerts, result.events)); err != nil {
		s.logger.Error("failed to render results", "error", err)
	}
}

// AnalyzeResponse is the response of POST /v1/analyze.
type AnalyzeResponse struct {
	Success    bool                      `json:"success"`
	RequestID  string                    `json:"request_id"`
	Filename   string                    `json:"filename"`
	EventCount int                       `json:"event_count"`
	AlertCount int                       `json:"alert_count"`
	Summary    []report.SummaryRow       `json:"summary"`
	Alerts     []detection.Alert         `json:"alerts"`
	Deliveries []alerting.DeliveryRecord `json:"deliveries,omitempty"`
}

// handleAnalyze handles POST /v1/analyze. The log is sent either as the
// logfile multipart field or as a raw text/csv body.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(middleware.RequestIDHeader)

	var (
		name = "upload.csv"
		body io.Reader
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, status, msg := s.readUpload(w, r)
		if msg != "" {
			respondError(w, status, msg, requestID)
			return
		}
		defer file.Close()
		name, body = header.Filename, file
	} else {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)
	}

	result, err := s.analyze(r.Context(), name, body)
	if err != nil {
		s.failuresTotal.Add(1)
		respondError(w, statusFor(err), sanitize.PublicMessage(err, userErrors...), requestID)
		return
	}

	alerts := result.alerts
	if alerts == nil {
		alerts = []detection.Alert{}
	}
	respondJSON(w, http.StatusOK, AnalyzeResponse{
		Success:    true,
		RequestID:  requestID,
		Filename:   name,
		EventCount: len(result.events),
		AlertCount: len(alerts),
		Summary:    report.Summarize(alerts),
		Alerts:     alerts,
		Deliveries: s.deliver(r.Context(), alerts),
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         "healthy",
		"rules":          len(s.engine.Rules()),
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	}
	if s.dispatcher != nil {
		resp["channels"] = s.dispatcher.Channels()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleMetrics handles GET /metrics (Prometheus text format).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP iamd_analyses_total Uploaded logs analyzed\n")
	fmt.Fprintf(w, "# TYPE iamd_analyses_total counter\n")
	fmt.Fprintf(w, "iamd_analyses_total %d\n\n", s.analysesTotal.Load())

	fmt.Fprintf(w, "# HELP iamd_analysis_failures_total Uploads rejected or failed\n")
	fmt.Fprintf(w, "# TYPE iamd_analysis_failures_total counter\n")
	fmt.Fprintf(w, "iamd_analysis_failures_total %d\n\n", s.failuresTotal.Load())

	fmt.Fprintf(w, "# HELP iamd_events_total Events analyzed\n")
	fmt.Fprintf(w, "# TYPE iamd_events_total counter\n")
	fmt.Fprintf(w, "iamd_events_total %d\n\n", s.eventsTotal.Load())

	fmt.Fprintf(w, "# HELP iamd_alerts_total Alerts raised\n")
	fmt.Fprintf(w, "# TYPE iamd_alerts_total counter\n")
	fmt.Fprintf(w, "iamd_alerts_total %d\n\n", s.alertsTotal.Load())

	fmt.Fprintf(w, "# HELP iamd_uptime_seconds Uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE iamd_uptime_seconds gauge\n")
	fmt.Fprintf(w, "iamd_uptime_seconds %d\n", int(time.Since(s.startTime).Seconds()))
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message string, requestID string) {
	respondJSON(w, status, map[string]any{
		"success":    false,
		"error":      message,
		"request_id": requestID,
	})
}
