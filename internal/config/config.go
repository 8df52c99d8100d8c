// Package config loads and validates the pipeline configuration shared by
// the Anonymization Engine, Extraction Engine, and Adaptive Batching
// Writer, read from YAML with environment-variable overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// IDStrategyConfig selects and parameterizes one of the ID Strategy
// Builder's five variants (§4.2).
type IDStrategyConfig struct {
	Kind      string `mapstructure:"kind" validate:"required,oneof=none folder deterministic csv sequential"`
	Pattern   string `mapstructure:"pattern" validate:"required_unless=Kind none"`
	Salt      string `mapstructure:"salt"`
	Discovery string `mapstructure:"discovery" validate:"omitempty,oneof=per_top_folder one_per_study all"`
	StartAt   int    `mapstructure:"start_at" validate:"min=0"`

	// Folder strategy.
	DepthAfterRoot int    `mapstructure:"depth_after_root"`
	Regex          string `mapstructure:"regex"`

	// CSV strategy.
	CSVPath         string `mapstructure:"csv_path"`
	CSVSourceColumn string `mapstructure:"csv_source_column"`
	CSVTargetColumn string `mapstructure:"csv_target_column"`
	CSVFallback     string `mapstructure:"csv_fallback" validate:"omitempty,oneof=hash sequential"`
}

// AnonymizerConfig configures one Anonymization Engine run (§4.3, §4.4).
type AnonymizerConfig struct {
	SourceRoot           string   `mapstructure:"source_root" validate:"required"`
	OutputRoot           string   `mapstructure:"output_root" validate:"required"`
	Workers              int      `mapstructure:"workers" validate:"min=1"`
	AnonymizePatientID   bool     `mapstructure:"anonymize_patient_id"`
	MapTimepoints        bool     `mapstructure:"map_timepoints"`
	RenamePatientFolders bool     `mapstructure:"rename_patient_folders"`
	PreserveUIDs         bool     `mapstructure:"preserve_uids"`
	ExcludeTags          []string `mapstructure:"exclude_tags"`
	IDStrategy           IDStrategyConfig `mapstructure:"id_strategy"`
}

// ExtractionConfig configures one Extraction Engine run (§4.7). Workers
// bounds the subject-level pool; SeriesWorkersPerSubject bounds the second,
// per-subject tier that reads a subject's own Series concurrently (§4.7
// step 2, §5's two-level Concurrency Model).
type ExtractionConfig struct {
	RawRoot                 string   `mapstructure:"raw_root" validate:"required"`
	Workers                 int      `mapstructure:"workers" validate:"min=1"`
	SeriesWorkersPerSubject int      `mapstructure:"series_workers_per_subject" validate:"min=1"`
	QueueSize               int      `mapstructure:"queue_size" validate:"min=1"`
	AllowedModalities       []string `mapstructure:"allowed_modalities"`
	DuplicatePolicy         string   `mapstructure:"duplicate_policy" validate:"required,oneof=skip overwrite abort"`
}

// WriterConfig configures the Adaptive Batching Writer's controller (§4.8).
type WriterConfig struct {
	InitialBatchSize int     `mapstructure:"initial_batch_size" validate:"min=1"`
	MinBatchSize     int     `mapstructure:"min_batch_size" validate:"min=1"`
	MaxBatchSize     int     `mapstructure:"max_batch_size" validate:"gtefield=MinBatchSize"`
	TargetMillis     float64 `mapstructure:"target_millis" validate:"gt=0"`
	AdaptiveEnabled  bool    `mapstructure:"adaptive_enabled"`
}

// DatabaseConfig carries the two DSNs the pipeline connects to: the audit
// ledger's database and the extraction metadata store's database (§4.5,
// §6). They may point at the same instance.
type DatabaseConfig struct {
	AuditDSN    string `mapstructure:"audit_dsn" validate:"required"`
	MetadataDSN string `mapstructure:"metadata_dsn" validate:"required"`
}

// Config is the full pipeline configuration tree (SPEC_FULL.md §A).
type Config struct {
	CohortName string            `mapstructure:"cohort_name" validate:"required"`
	Verbose    bool              `mapstructure:"verbose"`
	Database   DatabaseConfig    `mapstructure:"database" validate:"required"`
	Anonymizer AnonymizerConfig  `mapstructure:"anonymizer"`
	Extraction ExtractionConfig  `mapstructure:"extraction"`
	Writer     WriterConfig      `mapstructure:"writer"`
}

// Load reads configPath (if non-empty) through viper, overlays
// NILSCORE_-prefixed environment variables, applies defaults, and
// validates the result. Grounded on untoldecay-BeadsLog's viper
// Initialize (env-prefix binding, SetDefault calls, ReadInConfig) rebuilt
// around a single bound struct instead of a package-level get/set
// singleton, since the pipeline's configuration is loaded once per run
// rather than queried ad hoc across an interactive CLI session.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	v.SetEnvPrefix("NILSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anonymizer.workers", 4)
	v.SetDefault("anonymizer.id_strategy.kind", "none")
	v.SetDefault("anonymizer.id_strategy.discovery", "per_top_folder")
	v.SetDefault("anonymizer.id_strategy.start_at", 1)
	v.SetDefault("anonymizer.id_strategy.csv_source_column", "original_pid")
	v.SetDefault("anonymizer.id_strategy.csv_target_column", "anonymized_id")

	v.SetDefault("extraction.workers", 4)
	v.SetDefault("extraction.series_workers_per_subject", 4)
	v.SetDefault("extraction.queue_size", 500)
	v.SetDefault("extraction.duplicate_policy", "skip")

	v.SetDefault("writer.initial_batch_size", 50)
	v.SetDefault("writer.min_batch_size", 1)
	v.SetDefault("writer.max_batch_size", 1000)
	v.SetDefault("writer.target_millis", 250.0)
	v.SetDefault("writer.adaptive_enabled", true)
}

// Validate runs struct-tag validation over cfg (exposed separately so
// callers that build a Config programmatically, e.g. in tests, can
// validate without going through Load).
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
