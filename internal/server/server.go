package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raysh454/zapscan/internal/app"
	"github.com/raysh454/zapscan/internal/logging"
	"github.com/raysh454/zapscan/internal/model"
	"github.com/raysh454/zapscan/internal/pdfreport"
)

// maxBodyBytes caps submission and triage payloads.
const maxBodyBytes = 1 << 20

// Server is the HTTP + WebSocket API surface of the scan service.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
}

// NewServer creates a Server in front of orch.
func NewServer(cfg Config, orch *app.Orchestrator) (*Server, error) {
	if orch == nil {
		return nil, errors.New("server: orchestrator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		return nil, errors.New("server: logger is required")
	}

	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		router:       chi.NewRouter(),
		logger:       logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			// TODO: restrict to the dashboard origin once it is configurable
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.routes()
	return s, nil
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/api-scanner", s.optionsHandler("POST"))
	r.Options("/api-scanner/frontend", s.optionsHandler("POST"))
	r.Options("/api-scanner/{id}", s.optionsHandler("GET"))
	r.Options("/api-scanner/{id}/cancel", s.optionsHandler("POST"))
	r.Options("/reports/recent", s.optionsHandler("GET"))
	r.Options("/reports/stats", s.optionsHandler("GET"))
	r.Options("/reports/{id}", s.optionsHandler("GET, PATCH"))
	r.Options("/reports/{id}/download", s.optionsHandler("GET"))

	// Scans
	r.Post("/api-scanner", s.handleSubmitAPIScan)
	r.Post("/api-scanner/frontend", s.handleSubmitFrontendScan)
	r.Get("/api-scanner/{id}", s.handleGetScan)
	r.Post("/api-scanner/{id}/cancel", s.handleCancelScan)

	// Reports; the static segments are registered before {id}.
	r.Get("/reports/recent", s.handleRecentReports)
	r.Get("/reports/stats", s.handleStats)
	r.Get("/reports/{id}", s.handleGetReport)
	r.Patch("/reports/{id}", s.handleUpdateTriage)
	r.Get("/reports/{id}/download", s.handleDownloadReport)

	// WebSocket for scan progress
	r.Get("/ws/api-scanner/{id}", s.handleScanWS)

	// Operations
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.cfg.Metrics.Handler())
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler. Request bodies are never logged since
// they may carry login credentials.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// statusFor maps orchestrator errors onto HTTP status codes.
func statusFor(err error) int {
	var inputErr *app.InputError
	switch {
	case errors.As(err, &inputErr):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrScanNotFound):
		return http.StatusNotFound
	case errors.Is(err, pdfreport.ErrNotCompleted), errors.Is(err, app.ErrScanFinished):
		return http.StatusConflict
	case errors.Is(err, app.ErrQueueFull), errors.Is(err, app.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, action string, err error, fields ...logging.Field) {
	status := statusFor(err)
	fields = append(fields,
		logging.Field{Key: "status", Value: status},
		logging.Field{Key: "error", Value: err.Error()})
	if status >= http.StatusInternalServerError {
		s.logger.Error(action, fields...)
	} else {
		s.logger.Warn(action, fields...)
	}
	writeError(w, status, err.Error())
}

// --- HTTP handlers ---

// Scans

func (s *Server) handleSubmitAPIScan(w http.ResponseWriter, r *http.Request) {
	var req model.APIScanRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := s.orchestrator.SubmitAPIScan(r.Context(), req)
	if err != nil {
		s.fail(w, "submitting api scan", err)
		return
	}
	s.logger.Info("accepted api scan", logging.Field{Key: "scan_id", Value: view.ScanID})
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleSubmitFrontendScan(w http.ResponseWriter, r *http.Request) {
	var req model.FrontendScanRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := s.orchestrator.SubmitFrontendScan(r.Context(), req)
	if err != nil {
		s.fail(w, "submitting frontend scan", err)
		return
	}
	s.logger.Info("accepted frontend scan", logging.Field{Key: "scan_id", Value: view.ScanID})
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := s.orchestrator.GetScan(r.Context(), id)
	if err != nil {
		s.fail(w, "getting scan", err, logging.Field{Key: "scan_id", Value: id})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := s.orchestrator.CancelScan(r.Context(), id)
	if err != nil {
		s.fail(w, "canceling scan", err, logging.Field{Key: "scan_id", Value: id})
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

// Reports

func (s *Server) handleRecentReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.orchestrator.RecentScans(r.Context())
	if err != nil {
		s.fail(w, "listing recent reports", err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orchestrator.Stats(r.Context())
	if err != nil {
		s.fail(w, "computing stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := s.orchestrator.Report(r.Context(), id)
	if err != nil {
		s.fail(w, "getting report", err, logging.Field{Key: "scan_id", Value: id})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleUpdateTriage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var upd model.TriageUpdate
	if err := decodeBody(w, r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.orchestrator.UpdateTriage(r.Context(), id, upd)
	if err != nil {
		s.fail(w, "updating triage", err, logging.Field{Key: "scan_id", Value: id})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, filename, err := s.orchestrator.RenderReport(r.Context(), id)
	if err != nil {
		s.fail(w, "rendering report", err, logging.Field{Key: "scan_id", Value: id})
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc); err != nil {
		s.logger.Warn("writing report", logging.Field{Key: "scan_id", Value: id}, logging.Field{Key: "error", Value: err.Error()})
	}
}

// Operations

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.orchestrator.Ready(r.Context())
	if err != nil {
		s.logger.Warn("health check failed", logging.Field{Key: "error", Value: err.Error()})
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "zapVersion": version})
}

// WebSockets

// handleScanWS streams the scan's state: the current view first, then a
// fresh view after every status change, closing once the scan is terminal.
func (s *Server) handleScanWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Subscribe before reading the current state so no transition is missed.
	events, unsubscribe := s.orchestrator.Subscribe(id)
	defer unsubscribe()

	view, err := s.orchestrator.GetScan(r.Context(), id)
	if err != nil {
		s.fail(w, "opening scan stream", err, logging.Field{Key: "scan_id", Value: id})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	// Drain client frames so control messages are handled; a read error
	// means the client went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(view); err != nil {
		return
	}
	for !view.Status.Terminal() {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			view, err = s.orchestrator.GetScan(r.Context(), ev.ScanID)
			if err != nil {
				s.logger.Warn("reloading scan for stream", logging.Field{Key: "scan_id", Value: id}, logging.Field{Key: "error", Value: err.Error()})
				_ = conn.WriteJSON(map[string]string{"error": err.Error()})
				return
			}
			if err := conn.WriteJSON(view); err != nil {
				return
			}
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(view.Status)))
}
