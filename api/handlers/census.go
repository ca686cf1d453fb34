package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/malbeclabs/census/census/pkg/query"
	"github.com/malbeclabs/census/census/pkg/schema"
)

// Service is the census query surface the handlers serve.
type Service interface {
	Datasets() []query.DatasetSummary
	Levels(datasetType string, year int) ([]schema.Level, error)
	ListVariables(ctx context.Context, datasetType string, year int, level schema.Level) ([]string, error)
	Query(ctx context.Context, req query.Request) (*query.Records, error)
	QueryYears(ctx context.Context, req query.MultiYearRequest) (*query.MultiYearResult, error)
}

type Handler struct {
	log *slog.Logger
	svc Service
}

func NewHandler(log *slog.Logger, svc Service) (*Handler, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if svc == nil {
		return nil, errors.New("service is required")
	}
	return &Handler{log: log, svc: svc}, nil
}

// Routes mounts the census endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/datasets", h.GetDatasets)
	r.Get("/{type}/{year:[0-9]+}/levels", h.GetLevels)
	r.Get("/{type}/{year:[0-9]+}/{level}/variables", h.GetVariables)
	r.Get("/{type}/{year:[0-9]+}/{level}/query", h.GetQuery)
	r.Get("/{type}/{level}/compare", h.GetCompare)
}

type DatasetsResponse struct {
	Datasets []query.DatasetSummary `json:"datasets"`
}

type LevelsResponse struct {
	Type   string         `json:"type"`
	Year   int            `json:"year"`
	Levels []schema.Level `json:"levels"`
}

type VariablesResponse struct {
	Type      string       `json:"type"`
	Year      int          `json:"year"`
	Level     schema.Level `json:"level"`
	Variables []string     `json:"variables"`
}

func (h *Handler) GetDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.log, w, http.StatusOK, DatasetsResponse{Datasets: h.svc.Datasets()})
}

func (h *Handler) GetLevels(w http.ResponseWriter, r *http.Request) {
	datasetType := chi.URLParam(r, "type")
	year, err := parseYear(chi.URLParam(r, "year"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	levels, err := h.svc.Levels(datasetType, year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, LevelsResponse{Type: datasetType, Year: year, Levels: levels})
}

func (h *Handler) GetVariables(w http.ResponseWriter, r *http.Request) {
	datasetType := chi.URLParam(r, "type")
	year, err := parseYear(chi.URLParam(r, "year"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	level, err := schema.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	vars, err := h.svc.ListVariables(r.Context(), datasetType, year, level)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, VariablesResponse{Type: datasetType, Year: year, Level: level, Variables: vars})
}

// GetQuery serves one year: the body is a bare array of records.
func (h *Handler) GetQuery(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(chi.URLParam(r, "year"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	level, err := schema.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page := ParsePagination(r, DefaultLimit)
	records, err := h.svc.Query(r.Context(), query.Request{
		DatasetType: chi.URLParam(r, "type"),
		Year:        year,
		Level:       level,
		Variables:   parseList(r, "variables"),
		Limit:       page.Limit,
		Offset:      page.Offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, records)
}

// GetCompare serves the same variables across several years.
func (h *Handler) GetCompare(w http.ResponseWriter, r *http.Request) {
	level, err := schema.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	years, err := parseYears(parseList(r, "years"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page := ParsePagination(r, DefaultLimit)
	result, err := h.svc.QueryYears(r.Context(), query.MultiYearRequest{
		DatasetType: chi.URLParam(r, "type"),
		Years:       years,
		Level:       level,
		Variables:   parseList(r, "variables"),
		Limit:       page.Limit,
		Offset:      page.Offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, result)
}

func parseYear(s string) (int, error) {
	year, err := strconv.Atoi(s)
	if err != nil || year <= 0 {
		return 0, badRequest(fmt.Sprintf("invalid year %q", s))
	}
	return year, nil
}

func parseYears(in []string) ([]int, error) {
	if len(in) == 0 {
		return nil, badRequest("years is required")
	}
	years := make([]int, 0, len(in))
	for _, s := range in {
		year, err := parseYear(s)
		if err != nil {
			return nil, err
		}
		years = append(years, year)
	}
	return years, nil
}

// parseList reads a comma-separated query parameter; repeated parameters
// are concatenated.
func parseList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
