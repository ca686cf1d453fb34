// Package schema resolves logical dataset requests to physical tables and
// identifier columns.
package schema

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/malbeclabs/census/census/pkg/catalog"
)

var (
	// ErrUnsupportedLevel is returned when an aggregation level cannot be
	// served for the requested dataset and year.
	ErrUnsupportedLevel = errors.New("unsupported aggregation level")
	// ErrUnsupportedYear is returned when a dataset has no data for a year.
	ErrUnsupportedYear = errors.New("unsupported year")
)

// IdentifierSpec is the ordered list of physical columns forming a row's
// identity at a given level and year.
type IdentifierSpec []string

// Composite reports whether the identity spans more than one column.
func (s IdentifierSpec) Composite() bool {
	return len(s) > 1
}

// ResolveIdentifiers returns the identifier columns for a level in a given
// census year. It is a pure lookup and never touches the database.
func ResolveIdentifiers(year int, level Level) (IdentifierSpec, error) {
	yy := catalog.YearShort(year)
	switch level {
	case LevelShrid:
		return IdentifierSpec{"shrid2"}, nil
	case LevelConstituencyPre2008:
		return IdentifierSpec{"ac07_id"}, nil
	case LevelConstituencyPost2008:
		return IdentifierSpec{"ac08_id"}, nil
	case LevelDistrict:
		if !slices.Contains([]int{1991, 2001, 2011}, year) {
			break
		}
		return IdentifierSpec{"pc" + yy + "_state_id", "pc" + yy + "_district_id"}, nil
	case LevelSubdistrict:
		if !slices.Contains([]int{2001, 2011}, year) {
			break
		}
		return IdentifierSpec{"pc" + yy + "_state_id", "pc" + yy + "_district_id", "pc" + yy + "_subdistrict_id"}, nil
	default:
		return nil, fmt.Errorf("%w: unknown aggregation level %q", ErrUnsupportedLevel, level)
	}
	return nil, fmt.Errorf("%w: no %s identifiers exist for %d", ErrUnsupportedLevel, level, year)
}

// Resolver maps (dataset type, year, level) to physical names using the
// dataset catalog.
type Resolver struct {
	catalog *catalog.Registry
}

func NewResolver(c *catalog.Registry) (*Resolver, error) {
	if c == nil {
		return nil, errors.New("catalog is required")
	}
	return &Resolver{catalog: c}, nil
}

// Catalog returns the registry backing the resolver.
func (r *Resolver) Catalog() *catalog.Registry {
	return r.catalog
}

// AvailableLevels returns the levels configured for a dataset in a year,
// in canonical level order.
func (r *Resolver) AvailableLevels(datasetType string, year int) ([]Level, error) {
	d, err := r.dataset(datasetType, year)
	if err != nil {
		return nil, err
	}
	configured := d.AvailableLevels[year]
	levels := make([]Level, 0, len(configured))
	for _, l := range Levels {
		if slices.Contains(configured, string(l)) {
			levels = append(levels, l)
		}
	}
	return levels, nil
}

// Validate checks that a request can be served: the dataset exists, the year
// is published, the level is available that year and has identifier rules.
func (r *Resolver) Validate(datasetType string, year int, level Level) error {
	_, err := r.entry(datasetType, year, level)
	return err
}

// ResolveTable returns the physical table name: the level's filename
// template rendered for the year, without its extension.
func (r *Resolver) ResolveTable(datasetType string, year int, level Level) (string, error) {
	filename, _, err := r.filename(datasetType, year, level)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(filename, path.Ext(filename)), nil
}

// ResolvePath renders the dataset's path template for a level. The result
// is relative to the storage root unless the template is absolute.
func (r *Resolver) ResolvePath(datasetType string, year int, level Level) (string, error) {
	filename, d, err := r.filename(datasetType, year, level)
	if err != nil {
		return "", err
	}
	return catalog.Render(d.PathTemplate, year, filename), nil
}

// ColumnPrefix renders the dataset's column prefix for a year, or "" when
// the dataset does not declare one.
func (r *Resolver) ColumnPrefix(datasetType string, year int) (string, error) {
	d, err := r.dataset(datasetType, year)
	if err != nil {
		return "", err
	}
	if d.ColumnPrefix == "" {
		return "", nil
	}
	return catalog.Render(d.ColumnPrefix, year, ""), nil
}

// Target is everything needed to query one (type, year, level) triple.
type Target struct {
	DatasetType string
	Year        int
	Level       Level
	Table       string
	Identifiers IdentifierSpec
	Prefix      string
}

// Resolve validates the triple and returns its physical target.
func (r *Resolver) Resolve(datasetType string, year int, level Level) (Target, error) {
	table, err := r.ResolveTable(datasetType, year, level)
	if err != nil {
		return Target{}, err
	}
	ids, err := ResolveIdentifiers(year, level)
	if err != nil {
		return Target{}, err
	}
	prefix, err := r.ColumnPrefix(datasetType, year)
	if err != nil {
		return Target{}, err
	}
	return Target{
		DatasetType: datasetType,
		Year:        year,
		Level:       level,
		Table:       table,
		Identifiers: ids,
		Prefix:      prefix,
	}, nil
}

func (r *Resolver) filename(datasetType string, year int, level Level) (string, catalog.DatasetConfig, error) {
	d, err := r.entry(datasetType, year, level)
	if err != nil {
		return "", catalog.DatasetConfig{}, err
	}
	return catalog.Render(d.AggregationLevels[string(level)], year, ""), d, nil
}

func (r *Resolver) entry(datasetType string, year int, level Level) (catalog.DatasetConfig, error) {
	d, err := r.dataset(datasetType, year)
	if err != nil {
		return catalog.DatasetConfig{}, err
	}
	if !slices.Contains(d.AvailableLevels[year], string(level)) {
		return catalog.DatasetConfig{}, fmt.Errorf("%w: %s is not available for %s in %d", ErrUnsupportedLevel, level, datasetType, year)
	}
	if _, err := ResolveIdentifiers(year, level); err != nil {
		return catalog.DatasetConfig{}, err
	}
	return d, nil
}

func (r *Resolver) dataset(datasetType string, year int) (catalog.DatasetConfig, error) {
	d, err := r.catalog.Get(datasetType)
	if err != nil {
		return catalog.DatasetConfig{}, err
	}
	if !d.SupportsYear(year) {
		return catalog.DatasetConfig{}, fmt.Errorf("%w: %d is not available for %s", ErrUnsupportedYear, year, datasetType)
	}
	return d, nil
}
