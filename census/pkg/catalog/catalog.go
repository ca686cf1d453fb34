// Package catalog loads the declarative dataset configuration that maps
// logical census datasets to their physical files.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

var (
	// ErrConfig marks a malformed or unreadable configuration document.
	ErrConfig = errors.New("invalid dataset configuration")
	// ErrUnknownDatasetType is returned when a dataset type is not configured.
	ErrUnknownDatasetType = errors.New("unknown dataset type")
)

// Format is the encoding of a configuration document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// knownLevels mirrors schema.Level; catalog is a leaf package so the tags
// are repeated here for load-time validation.
var knownLevels = map[string]bool{
	"shrid":                  true,
	"constituency_pre_2008":  true,
	"constituency_post_2008": true,
	"district":               true,
	"subdistrict":            true,
}

// DatasetConfig describes one dataset type across census years.
type DatasetConfig struct {
	Type        string
	Description string
	Years       []int
	// AvailableLevels maps a census year to the aggregation level tags
	// published for it.
	AvailableLevels map[int][]string
	// AggregationLevels maps a level tag to a filename template containing
	// {year_short}.
	AggregationLevels map[string]string
	// PathTemplate renders a storage path from {year}, {year_short} and
	// {filename}.
	PathTemplate string
	// ColumnPrefix is an optional template (e.g. "pc{year_short}_pca") for
	// the physical prefix of data columns.
	ColumnPrefix string
}

// SupportsYear reports whether the dataset publishes data for year.
func (d DatasetConfig) SupportsYear(year int) bool {
	return slices.Contains(d.Years, year)
}

// Document is the on-disk shape of the configuration.
type Document struct {
	DataFiles []FileEntry `json:"data_files" yaml:"data_files"`
}

// FileEntry is one element of data_files. Year keys of available_levels are
// strings in the document.
type FileEntry struct {
	Type              string              `json:"type" yaml:"type"`
	Description       string              `json:"description,omitempty" yaml:"description,omitempty"`
	Years             []int               `json:"years" yaml:"years"`
	AvailableLevels   map[string][]string `json:"available_levels" yaml:"available_levels"`
	AggregationLevels map[string]string   `json:"aggregation_levels" yaml:"aggregation_levels"`
	PathTemplate      string              `json:"path_template" yaml:"path_template"`
	ColumnPrefix      string              `json:"column_prefix,omitempty" yaml:"column_prefix,omitempty"`
}

type snapshot struct {
	order    []string
	datasets map[string]DatasetConfig
}

// Registry holds an immutable snapshot of the configuration. Lookups are
// lock-free; Reload swaps the snapshot as a whole.
type Registry struct {
	path    string
	current atomic.Pointer[snapshot]
}

// Load reads and validates the configuration at path. The format is chosen
// from the file extension (.yaml/.yml, anything else is JSON).
func Load(path string) (*Registry, error) {
	snap, err := readFile(path)
	if err != nil {
		return nil, err
	}
	r := &Registry{path: path}
	r.current.Store(snap)
	return r, nil
}

// Parse builds a registry from an in-memory document. Registries created
// this way cannot be reloaded.
func Parse(data []byte, format Format) (*Registry, error) {
	snap, err := parse(data, format)
	if err != nil {
		return nil, err
	}
	r := &Registry{}
	r.current.Store(snap)
	return r, nil
}

// Path returns the file the registry was loaded from, or "" for parsed
// registries.
func (r *Registry) Path() string {
	return r.path
}

// Dir returns the directory of the configuration file. Relative storage
// paths are resolved against it.
func (r *Registry) Dir() string {
	if r.path == "" {
		return ""
	}
	return filepath.Dir(r.path)
}

// Reload re-reads the source file. On failure the previous snapshot stays
// active and the error is returned.
func (r *Registry) Reload() error {
	if r.path == "" {
		return fmt.Errorf("%w: registry has no source file", ErrConfig)
	}
	snap, err := readFile(r.path)
	if err != nil {
		return err
	}
	r.current.Store(snap)
	return nil
}

// Get returns the configuration for a dataset type.
func (r *Registry) Get(datasetType string) (DatasetConfig, error) {
	d, ok := r.current.Load().datasets[datasetType]
	if !ok {
		return DatasetConfig{}, fmt.Errorf("%w: %q", ErrUnknownDatasetType, datasetType)
	}
	return d, nil
}

// Types returns the configured dataset types in document order.
func (r *Registry) Types() []string {
	return slices.Clone(r.current.Load().order)
}

// All returns every dataset configuration in document order.
func (r *Registry) All() []DatasetConfig {
	snap := r.current.Load()
	out := make([]DatasetConfig, 0, len(snap.order))
	for _, t := range snap.order {
		out = append(out, snap.datasets[t])
	}
	return out
}

func readFile(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", ErrConfig, path, err)
	}
	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	return parse(data, format)
}

func parse(data []byte, format Format) (*snapshot, error) {
	var doc Document
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrConfig, format)
	}
	return build(doc)
}

func build(doc Document) (*snapshot, error) {
	if len(doc.DataFiles) == 0 {
		return nil, fmt.Errorf("%w: data_files is empty", ErrConfig)
	}
	snap := &snapshot{datasets: make(map[string]DatasetConfig, len(doc.DataFiles))}
	for i, entry := range doc.DataFiles {
		d, err := entry.toConfig()
		if err != nil {
			return nil, fmt.Errorf("%w: data_files[%d]: %w", ErrConfig, i, err)
		}
		if _, dup := snap.datasets[d.Type]; dup {
			return nil, fmt.Errorf("%w: duplicate dataset type %q", ErrConfig, d.Type)
		}
		snap.datasets[d.Type] = d
		snap.order = append(snap.order, d.Type)
	}
	return snap, nil
}

func (e FileEntry) toConfig() (DatasetConfig, error) {
	if e.Type == "" {
		return DatasetConfig{}, errors.New("type is required")
	}
	if len(e.Years) == 0 {
		return DatasetConfig{}, fmt.Errorf("%s: years is required", e.Type)
	}
	if e.PathTemplate == "" {
		return DatasetConfig{}, fmt.Errorf("%s: path_template is required", e.Type)
	}
	for level, tmpl := range e.AggregationLevels {
		if !knownLevels[level] {
			return DatasetConfig{}, fmt.Errorf("%s: unknown aggregation level %q", e.Type, level)
		}
		if tmpl == "" {
			return DatasetConfig{}, fmt.Errorf("%s: empty filename template for level %q", e.Type, level)
		}
	}

	d := DatasetConfig{
		Type:              e.Type,
		Description:       e.Description,
		Years:             slices.Clone(e.Years),
		AvailableLevels:   make(map[int][]string, len(e.AvailableLevels)),
		AggregationLevels: e.AggregationLevels,
		PathTemplate:      e.PathTemplate,
		ColumnPrefix:      e.ColumnPrefix,
	}
	for key, levels := range e.AvailableLevels {
		year, err := strconv.Atoi(key)
		if err != nil {
			return DatasetConfig{}, fmt.Errorf("%s: available_levels key %q is not a year", e.Type, key)
		}
		if !d.SupportsYear(year) {
			return DatasetConfig{}, fmt.Errorf("%s: available_levels lists year %d which is not in years", e.Type, year)
		}
		for _, level := range levels {
			if _, ok := e.AggregationLevels[level]; !ok {
				return DatasetConfig{}, fmt.Errorf("%s: level %q for year %d has no aggregation_levels entry", e.Type, level, year)
			}
		}
		d.AvailableLevels[year] = slices.Clone(levels)
	}
	return d, nil
}
