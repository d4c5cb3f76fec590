package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config carries the run-level settings of a bps2omop invocation.
// Per-table source descriptions live in the Manifest, not here.
type Config struct {
	// OutDir is where OMOP parquet tables are written.
	OutDir string
	// DataDir is prepended to relative source paths in the manifest.
	DataDir string

	Vocabulary VocabularyConfig
	Reduce     ReduceConfig
	Link       LinkConfig

	Verbose bool
}

// VocabularyConfig selects and tunes the concept store.
type VocabularyConfig struct {
	// PostgresDSN, when set, selects the Postgres-backed store.
	PostgresDSN string
	// ConceptPath / RelationshipPath point at Athena exports for the
	// file-backed store. Used when PostgresDSN is empty.
	ConceptPath      string
	RelationshipPath string

	CacheTTL     time.Duration
	CacheCleanup time.Duration
}

// ReduceConfig tunes the overlap reducer.
type ReduceConfig struct {
	MaxIterations int
	// FailOnCap makes hitting the iteration cap an error instead of a
	// warning.
	FailOnCap bool
}

// LinkConfig tunes the visit linker.
type LinkConfig struct {
	BatchSize int
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		OutDir:  "omop",
		DataDir: ".",
		Vocabulary: VocabularyConfig{
			CacheTTL:     time.Hour,
			CacheCleanup: 10 * time.Minute,
		},
		Reduce: ReduceConfig{
			MaxIterations: 1000,
		},
		Link: LinkConfig{
			BatchSize: 10000,
		},
	}
}

// FromViper builds a Config from bound viper keys, falling back to the
// defaults for anything unset.
func FromViper(v *viper.Viper) *Config {
	cfg := DefaultConfig()
	if v.IsSet("out_dir") {
		cfg.OutDir = v.GetString("out_dir")
	}
	if v.IsSet("data_dir") {
		cfg.DataDir = v.GetString("data_dir")
	}
	if v.IsSet("vocabulary.postgres_dsn") {
		cfg.Vocabulary.PostgresDSN = v.GetString("vocabulary.postgres_dsn")
	}
	if v.IsSet("vocabulary.concept_path") {
		cfg.Vocabulary.ConceptPath = v.GetString("vocabulary.concept_path")
	}
	if v.IsSet("vocabulary.relationship_path") {
		cfg.Vocabulary.RelationshipPath = v.GetString("vocabulary.relationship_path")
	}
	if v.IsSet("vocabulary.cache_ttl") {
		cfg.Vocabulary.CacheTTL = v.GetDuration("vocabulary.cache_ttl")
	}
	if v.IsSet("reduce.max_iterations") {
		cfg.Reduce.MaxIterations = v.GetInt("reduce.max_iterations")
	}
	if v.IsSet("reduce.fail_on_cap") {
		cfg.Reduce.FailOnCap = v.GetBool("reduce.fail_on_cap")
	}
	if v.IsSet("link.batch_size") {
		cfg.Link.BatchSize = v.GetInt("link.batch_size")
	}
	cfg.Verbose = v.GetBool("verbose")
	return cfg
}

// Manifest describes, per OMOP table, which source files feed it and how
// their columns and codes translate. It is the YAML the ETL operators
// maintain alongside the export.
type Manifest struct {
	Tables map[string]TableSpec `yaml:"tables"`
}

// TableSpec configures the build of one OMOP table.
type TableSpec struct {
	Sources []SourceSpec `yaml:"sources"`

	// Targets maps a vocabulary_id to the CONCEPT column its source
	// values are matched on ("concept_code" or "concept_name").
	Targets map[string]string `yaml:"targets,omitempty"`
	// Fallbacks are vocabularies retried, in order, for values the
	// primary vocabulary could not map.
	Fallbacks []FallbackSpec `yaml:"fallbacks,omitempty"`

	// VisitCodes assigns visit_concept_id values (visit_occurrence only).
	VisitCodes []VisitCodeSpec `yaml:"visit_codes,omitempty"`

	// NDays is the gap under which intervals merge into one observation
	// period (observation_period only).
	NDays int `yaml:"n_days,omitempty"`
}

// SourceSpec describes one input file.
type SourceSpec struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // "csv" or "parquet"

	Columns ColumnMap `yaml:"columns"`

	// Vocabulary declares the code system of the source values in this
	// file.
	Vocabulary string `yaml:"vocabulary,omitempty"`
	// TypeConcept is the constant provenance concept stamped on every
	// row read from this file.
	TypeConcept int64 `yaml:"type_concept,omitempty"`

	// Transform is an optional per-file shape fix applied after reading:
	// "single_day" (end := start) or "melt_start_end" (split the row
	// into two single-day events).
	Transform string `yaml:"transform,omitempty"`

	CSV CSVOptions `yaml:"csv,omitempty"`
}

// ColumnMap names the source file's columns for each normalized field.
// Empty entries mean the field is absent from the file.
type ColumnMap struct {
	PersonID    string `yaml:"person_id"`
	StartDate   string `yaml:"start_date"`
	EndDate     string `yaml:"end_date,omitempty"`
	SourceValue string `yaml:"source_value,omitempty"`
	Value       string `yaml:"value,omitempty"`
	Unit        string `yaml:"unit,omitempty"`
	ProviderID  string `yaml:"provider_id,omitempty"`
}

// CSVOptions tune CSV parsing for exports that deviate from the defaults.
type CSVOptions struct {
	Separator  string `yaml:"separator,omitempty"`   // default ","
	DateLayout string `yaml:"date_layout,omitempty"` // Go layout, default "2006-01-02"
}

// FallbackSpec is one fallback vocabulary.
type FallbackSpec struct {
	Vocabulary string `yaml:"vocabulary"`
	MatchOn    string `yaml:"match_on"` // "concept_code" or "concept_name"
}

// VisitCodeSpec is one visit_concept_id assignment rule, applied in
// order to rows still carrying concept 0.
type VisitCodeSpec struct {
	Rule string `yaml:"rule"` // "single_code", "duration_code", "field_code"
	Code int64  `yaml:"code"`

	// duration_code: inclusive duration window in days.
	MinDays int `yaml:"min_days,omitempty"`
	MaxDays int `yaml:"max_days,omitempty"`

	// field_code: rows whose source value equals Equals get the code.
	Equals string `yaml:"equals,omitempty"`
}

// LoadManifest reads and validates a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}
	return &m, nil
}

// Validate checks structural invariants the builders rely on.
func (m *Manifest) Validate() error {
	if len(m.Tables) == 0 {
		return fmt.Errorf("manifest defines no tables")
	}
	for name, table := range m.Tables {
		if len(table.Sources) == 0 {
			return fmt.Errorf("table %s: no sources", name)
		}
		for i, src := range table.Sources {
			if src.Path == "" {
				return fmt.Errorf("table %s: source %d: missing path", name, i)
			}
			switch src.Format {
			case "csv", "parquet":
			default:
				return fmt.Errorf("table %s: source %s: unknown format %q", name, src.Path, src.Format)
			}
			if src.Columns.PersonID == "" {
				return fmt.Errorf("table %s: source %s: missing person_id column", name, src.Path)
			}
			switch src.Transform {
			case "", "single_day", "melt_start_end":
			default:
				return fmt.Errorf("table %s: source %s: unknown transform %q", name, src.Path, src.Transform)
			}
		}
		for vocab, target := range table.Targets {
			if target != "concept_code" && target != "concept_name" {
				return fmt.Errorf("table %s: vocabulary %s: unknown match target %q", name, vocab, target)
			}
		}
		for _, rule := range table.VisitCodes {
			switch rule.Rule {
			case "single_code", "duration_code", "field_code":
			default:
				return fmt.Errorf("table %s: unknown visit code rule %q", name, rule.Rule)
			}
		}
	}
	return nil
}

// Table returns the spec for one OMOP table.
func (m *Manifest) Table(name string) (TableSpec, error) {
	spec, ok := m.Tables[name]
	if !ok {
		return TableSpec{}, fmt.Errorf("manifest has no table %q", name)
	}
	return spec, nil
}
