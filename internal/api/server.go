package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"obd-diagnostics/internal/diagnostics"
	"obd-diagnostics/internal/models"
	"obd-diagnostics/internal/parser"
	"obd-diagnostics/internal/refranges"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RangeSource provides reference ranges, from a file-backed table or the
// SQLite store
type RangeSource interface {
	RangeTable(v models.Vehicle) (*refranges.Table, error)
	Vehicles() ([]models.Vehicle, error)
}

// TableSource serves a table loaded in memory
type TableSource struct {
	Table *refranges.Table
}

func (s TableSource) RangeTable(models.Vehicle) (*refranges.Table, error) {
	return s.Table, nil
}

func (s TableSource) Vehicles() ([]models.Vehicle, error) {
	return s.Table.Vehicles(), nil
}

// Server represents the API server
type Server struct {
	engine    *diagnostics.Engine
	ranges    RangeSource
	logger    *zap.Logger
	maxUpload int64
	router    *mux.Router
}

// NewServer creates a new API server
func NewServer(engine *diagnostics.Engine, ranges RangeSource, logger *zap.Logger, maxUploadMB int) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 32
	}
	s := &Server{
		engine:    engine,
		ranges:    ranges,
		logger:    logger,
		maxUpload: int64(maxUploadMB) << 20,
		router:    mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/v1/registry", s.handleRegistry).Methods("GET")
	s.router.HandleFunc("/api/v1/ranges", s.handleRanges).Methods("GET")
	s.router.HandleFunc("/api/v1/analyze", s.handleAnalyze).Methods("POST")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(jsonMiddleware)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Response helpers
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *meta       `json:"meta,omitempty"`
}

type meta struct {
	Total   int   `json:"total,omitempty"`
	QueryMs int64 `json:"query_ms,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func respondWithMeta(w http.ResponseWriter, data interface{}, m *meta) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data, Meta: m})
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type parameterView struct {
	Name        string             `json:"name"`
	Kind        models.Kind        `json:"kind"`
	Unit        string             `json:"unit,omitempty"`
	Group       string             `json:"group"`
	Rule        models.Rule        `json:"rule"`
	Description string             `json:"description"`
	Aliases     []string           `json:"aliases"`
	Expected    []string           `json:"expected,omitempty"`
	FixedRange  *models.IdealRange `json:"fixed_range,omitempty"`
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	params := s.engine.Registry().Parameters()
	out := make([]parameterView, 0, len(params))
	for _, p := range params {
		out = append(out, parameterView{
			Name:        p.Name,
			Kind:        p.Kind,
			Unit:        p.Unit,
			Group:       p.Group,
			Rule:        p.Rule,
			Description: p.Description,
			Aliases:     p.Candidates(),
			Expected:    p.Expected,
			FixedRange:  p.FixedRange,
		})
	}
	respondWithMeta(w, out, &meta{Total: len(out)})
}

func (s *Server) handleRanges(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	fuel := r.URL.Query().Get("fuel")

	if model == "" && fuel == "" {
		vehicles, err := s.ranges.Vehicles()
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondWithMeta(w, vehicles, &meta{Total: len(vehicles)})
		return
	}
	if model == "" || fuel == "" {
		respondError(w, http.StatusBadRequest, "model and fuel are required together")
		return
	}

	v := models.Vehicle{Model: model, Fuel: fuel}
	table, err := s.ranges.RangeTable(v)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	prof, ok := table.Profile(v.Model, v.Fuel)
	if !ok {
		respondError(w, http.StatusNotFound, "no reference profile for vehicle")
		return
	}
	respondWithMeta(w, prof, &meta{Total: len(prof)})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	v := models.Vehicle{Model: q.Get("model"), Fuel: q.Get("fuel")}
	if strings.TrimSpace(v.Model) == "" || strings.TrimSpace(v.Fuel) == "" {
		respondError(w, http.StatusBadRequest, "model and fuel are required")
		return
	}

	name, data, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := parser.NewParser(q.Get("format"), parser.WithSheet(q.Get("sheet")), parser.WithLogger(s.logger))
	ds, err := p.Parse(name, data)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	table, err := s.ranges.RangeTable(v)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	report := s.engine.Analyze(ds, v, table)
	respondWithMeta(w, report, &meta{
		Total:   len(report.Entries),
		QueryMs: time.Since(start).Milliseconds(),
	})
}

// readUpload accepts a multipart field "file" or a raw request body
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(s.maxUpload); err != nil {
			return "", nil, fmt.Errorf("invalid multipart body: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, fmt.Errorf("missing form field \"file\": %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, err
		}
		return header.Filename, data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("empty body")
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload"
	}
	return name, data, nil
}
