// Package server exposes listing history and integrity checks over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"realestate-scraper/models"
	"realestate-scraper/services"
	"realestate-scraper/storage"
	"realestate-scraper/utils"
)

// Server is the read-only HTTP API over the history store.
type Server struct {
	store     storage.HistoryStore
	integrity *services.IntegrityService
	logger    *utils.Logger
	router    *mux.Router
}

func New(store storage.HistoryStore, integrity *services.IntegrityService, logger *utils.Logger) *Server {
	s := &Server{
		store:     store,
		integrity: integrity,
		logger:    logger,
		router:    mux.NewRouter(),
	}
	s.router.Use(s.logRequests)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/ads/history", s.handleHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/api/integrity", s.handleIntegrity).Methods(http.MethodGet)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// HistoryRow is one version of a listing as served by the API.
type HistoryRow struct {
	Version      int                 `json:"version"`
	ValidFrom    string              `json:"valid_from"`
	ValidTo      *string             `json:"valid_to"`
	IsCurrent    bool                `json:"is_current"`
	ChangeReason models.ChangeReason `json:"change_reason"`
	Title        *string             `json:"naslov"`
	Price        decimal.NullDecimal `json:"cena"`
	PricePerArea decimal.NullDecimal `json:"cena_po_m2"`
	Location     *string             `json:"lokacija"`
	City         *string             `json:"grad"`
	Area         decimal.NullDecimal `json:"kvadratura"`
	PropertyType *string             `json:"tip_stana"`
	Rooms        *string             `json:"sobnost"`
	Floor        *string             `json:"sprat"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NewHistoryRow converts a stored record for output.
func NewHistoryRow(r *models.Record) HistoryRow {
	row := HistoryRow{
		Version:      r.Version,
		ValidFrom:    r.ValidFrom.Format("2006-01-02"),
		IsCurrent:    r.IsCurrent,
		ChangeReason: r.ChangeReason,
		Title:        r.Title,
		Price:        r.Price,
		PricePerArea: r.PricePerArea,
		Location:     r.Location,
		City:         r.City,
		Area:         r.Area,
		PropertyType: r.PropertyType,
		Rooms:        r.Rooms,
		Floor:        r.Floor,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.ValidTo != nil {
		to := r.ValidTo.Format("2006-01-02")
		row.ValidTo = &to
	}
	return row
}

type historyResponse struct {
	URL      string        `json:"url"`
	Source   models.Source `json:"izvor"`
	Versions []HistoryRow  `json:"versions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	source := models.Source(r.URL.Query().Get("source"))
	url := r.URL.Query().Get("url")
	if !source.Valid() {
		writeError(w, http.StatusBadRequest, "source must be one of nekretnine.rs, oglasi.rs")
		return
	}
	if url == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	records, err := s.store.History(r.Context(), url, source)
	if err != nil {
		s.logger.Error("History lookup failed", "url", url, "error", err)
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}

	resp := historyResponse{URL: url, Source: source, Versions: make([]HistoryRow, 0, len(records))}
	for _, rec := range records {
		resp.Versions = append(resp.Versions, NewHistoryRow(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.integrity.Check(r.Context())
	if err != nil {
		s.logger.Error("Integrity check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "integrity check failed")
		return
	}
	violations := report.Violations
	if violations == nil {
		violations = []models.Violation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         report.OK(),
		"checked_at": report.CheckedAt,
		"by_check":   report.ByCheck,
		"violations": violations,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.logger.Info("HTTP request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).Round(time.Microsecond))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
