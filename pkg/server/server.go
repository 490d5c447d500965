// Package server exposes the ingestion and matrix engine over HTTP for
// the dashboard frontend.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seotools/rankmatrix/internal/store"
	"github.com/seotools/rankmatrix/pkg/ingest"
	"github.com/seotools/rankmatrix/pkg/matrix"
	"github.com/seotools/rankmatrix/pkg/view"
)

// maxUploadBytes bounds one uploaded export file.
const maxUploadBytes = 32 << 20

// Server provides the HTTP API.
type Server struct {
	store   store.Store
	builder *matrix.Builder
	logger  *zap.Logger
	ingest  ingest.Options
	port    int
}

// New creates a new HTTP server. The ingest options carry the configured
// defaults (delimiter override, default country) applied to uploads.
func New(s store.Store, builder *matrix.Builder, logger *zap.Logger, ingestDefaults ingest.Options, port int) *Server {
	if port == 0 {
		port = 8080
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:   s,
		builder: builder,
		logger:  logger,
		ingest:  ingestDefaults,
		port:    port,
	}
}

// Handler returns the route mux, exported for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/observations/import", s.handleImport)
	mux.HandleFunc("/api/v1/matrix", s.handleMatrix)
	mux.HandleFunc("/api/v1/countries", s.handleCountries)
	mux.HandleFunc("/api/v1/subjects", s.handleSubjects)
	return mux
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("server listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart request"})
		return
	}

	subjectID := r.FormValue("subject")
	if subjectID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "subject is required"})
		return
	}

	opts := s.ingest
	opts.SubjectID = subjectID
	opts.DefaultDate = store.Day(time.Now())
	if v := r.FormValue("date"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, time.UTC)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
			return
		}
		opts.DefaultDate = d
	}
	switch r.FormValue("delimiter") {
	case "tab":
		opts.Delimiter = '\t'
	case "comma":
		opts.Delimiter = ','
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
		return
	}
	defer file.Close()

	summary, err := ingest.Ingest(r.Context(), s.logger, file, opts, s.store)
	if err != nil {
		var missing *ingest.MissingColumnError
		if errors.As(err, &missing) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error":   missing.Error(),
				"missing": missing.Field,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleMatrix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	q := r.URL.Query()

	country := q.Get("country")
	if country == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "country is required"})
		return
	}

	date := store.Day(time.Now())
	if v := q.Get("date"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, time.UTC)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = d
	}

	subjects, err := s.resolveSubjects(r, country, q.Get("subjects"), q.Get("platform"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	m, err := s.builder.Build(r.Context(), date, country, subjects)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	rows := view.Apply(m, subjects, view.ParseFilter(q.Get("filter")), view.ParseSort(q.Get("sort")))

	writeJSON(w, http.StatusOK, map[string]any{
		"date":     m.Date.Format("2006-01-02"),
		"country":  m.Country,
		"subjects": m.SubjectIDs,
		"rows":     rows,
		"count":    len(rows),
	})
}

// resolveSubjects picks the matrix columns: an explicit comma-separated
// list wins, otherwise every subject with data for the country, optionally
// narrowed to one platform.
func (s *Server) resolveSubjects(r *http.Request, country, explicit, platform string) ([]string, error) {
	if explicit != "" {
		var ids []string
		for _, id := range strings.Split(explicit, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		return ids, nil
	}

	ids, err := s.store.SubjectsForCountry(r.Context(), country)
	if err != nil {
		return nil, fmt.Errorf("list subjects for %s: %w", country, err)
	}
	if platform == "" {
		return ids, nil
	}

	subjects, err := s.store.ListSubjects(r.Context())
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	platforms := make(map[string]string, len(subjects))
	for _, subj := range subjects {
		platforms[subj.ID] = subj.Platform
	}

	var filtered []string
	for _, id := range ids {
		if platforms[id] == platform {
			filtered = append(filtered, id)
		}
	}
	return filtered, nil
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	countries, err := s.builder.Countries(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  countries,
		"count": len(countries),
	})
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		subjects, err := s.store.ListSubjects(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data":  subjects,
			"count": len(subjects),
		})

	case http.MethodPost:
		var subj store.Subject
		if err := json.NewDecoder(r.Body).Decode(&subj); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if subj.ID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
			return
		}
		if err := s.store.UpsertSubject(r.Context(), subj); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, subj)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
