package config

import "testing"

func validConfig() *Config {
	return &Config{
		CohortName: "demo",
		Database: DatabaseConfig{
			AuditDSN:    "postgres://localhost/audit",
			MetadataDSN: "postgres://localhost/metadata",
		},
		Anonymizer: AnonymizerConfig{
			SourceRoot: "/data/raw",
			OutputRoot: "/data/anon",
			Workers:    4,
			IDStrategy: IDStrategyConfig{Kind: "none"},
		},
		Extraction: ExtractionConfig{
			RawRoot:                 "/data/anon",
			Workers:                 4,
			SeriesWorkersPerSubject: 4,
			QueueSize:               500,
			DuplicatePolicy:         "skip",
		},
		Writer: WriterConfig{
			InitialBatchSize: 50,
			MinBatchSize:     1,
			MaxBatchSize:     1000,
			TargetMillis:     250,
		},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsMissingCohortName(t *testing.T) {
	cfg := validConfig()
	cfg.CohortName = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for missing cohort_name")
	}
}

func TestValidateRejectsUnknownDuplicatePolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Extraction.DuplicatePolicy = "merge"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for unknown duplicate_policy")
	}
}

func TestValidateRejectsMaxBatchSizeBelowMin(t *testing.T) {
	cfg := validConfig()
	cfg.Writer.MaxBatchSize = 10
	cfg.Writer.MinBatchSize = 20
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for max_batch_size < min_batch_size")
	}
}

func TestValidateRequiresPatternForNonNoneIDStrategy(t *testing.T) {
	cfg := validConfig()
	cfg.Anonymizer.IDStrategy = IDStrategyConfig{Kind: "sequential"}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for sequential strategy missing pattern")
	}
}

func TestValidateRejectsUnknownIDStrategyKind(t *testing.T) {
	cfg := validConfig()
	cfg.Anonymizer.IDStrategy.Kind = "magic"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for unknown id_strategy.kind")
	}
}
