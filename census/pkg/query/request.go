package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/malbeclabs/census/census/pkg/schema"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100000
	MaxVariables = 50
	MaxYears     = 3
)

// ErrInvalidRequest is returned for requests outside the accepted bounds.
// It is raised before any engine call.
var ErrInvalidRequest = errors.New("invalid request")

// Request asks for variables of one dataset, year and level.
type Request struct {
	DatasetType string
	Year        int
	Level       schema.Level
	Variables   []string
	Limit       int
	Offset      int
}

// MultiYearRequest asks for the same variables across several years.
type MultiYearRequest struct {
	DatasetType string
	Years       []int
	Level       schema.Level
	Variables   []string
	Limit       int
	Offset      int
}

// Normalize trims variable names, drops empty ones and repeats, and checks
// the bounds on variables, limit and offset.
func (r *Request) Normalize() error {
	vars, err := normalizeVariables(r.Variables)
	if err != nil {
		return err
	}
	r.Variables = vars
	return checkPage(r.Limit, r.Offset)
}

// Normalize is Request.Normalize plus de-duplication of years.
func (r *MultiYearRequest) Normalize() error {
	vars, err := normalizeVariables(r.Variables)
	if err != nil {
		return err
	}
	r.Variables = vars

	var years []int
	seen := map[int]bool{}
	for _, y := range r.Years {
		if seen[y] {
			continue
		}
		seen[y] = true
		years = append(years, y)
	}
	if len(years) == 0 {
		return fmt.Errorf("%w: at least one year is required", ErrInvalidRequest)
	}
	if len(years) > MaxYears {
		return fmt.Errorf("%w: at most %d years may be requested", ErrInvalidRequest, MaxYears)
	}
	r.Years = years
	return checkPage(r.Limit, r.Offset)
}

func (r MultiYearRequest) forYear(year int) Request {
	return Request{
		DatasetType: r.DatasetType,
		Year:        year,
		Level:       r.Level,
		Variables:   r.Variables,
		Limit:       r.Limit,
		Offset:      r.Offset,
	}
}

func normalizeVariables(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) > MaxVariables {
		return nil, fmt.Errorf("%w: at most %d variables may be requested, got %d", ErrInvalidRequest, MaxVariables, len(out))
	}
	return out, nil
}

func checkPage(limit, offset int) error {
	if limit <= 0 || limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d, got %d", ErrInvalidRequest, MaxLimit, limit)
	}
	if offset < 0 {
		return fmt.Errorf("%w: offset must be non-negative, got %d", ErrInvalidRequest, offset)
	}
	return nil
}
