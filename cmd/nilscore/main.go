// Command nilscore wires the Anonymization Engine, Extraction Engine,
// Adaptive Batching Writer, and Stack Discovery into one cohort run.
// Grounded on the teacher's cmd/anonymizer/main.go flag-parsing shape
// (stdlib flag, no cobra), minus its GUI fallback: an unselected input
// folder is an error here, not a reason to launch a desktop wizard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/NeuroGranberg/nils-core/internal/anonymizer"
	"github.com/NeuroGranberg/nils-core/internal/appdb"
	"github.com/NeuroGranberg/nils-core/internal/audit"
	"github.com/NeuroGranberg/nils-core/internal/config"
	"github.com/NeuroGranberg/nils-core/internal/extract"
	"github.com/NeuroGranberg/nils-core/internal/idstrategy"
	"github.com/NeuroGranberg/nils-core/internal/layout"
	"github.com/NeuroGranberg/nils-core/internal/logging"
	"github.com/NeuroGranberg/nils-core/internal/metadatadb"
	"github.com/NeuroGranberg/nils-core/internal/model"
	"github.com/NeuroGranberg/nils-core/internal/stackdiscovery"
	"github.com/NeuroGranberg/nils-core/internal/writer"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	cohort := flag.String("cohort", "", "Cohort name override (defaults to the config file's cohort_name)")
	stage := flag.String("stage", "all", "Stage to run: anonymize, extract, stack, or all")
	verbose := flag.Bool("verbose", false, "Enable debug-level logging")
	help := flag.Bool("help", false, "Show this help message")

	flag.Usage = printUsage
	flag.Parse()

	if *help {
		printUsage()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *cohort != "" {
		cfg.CohortName = *cohort
	}
	if *verbose {
		cfg.Verbose = true
	}

	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("cohort", cfg.CohortName))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, cfg, *stage); err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "nilscore -config <path> [-cohort name] [-stage anonymize|extract|stack|all] [-verbose]")
	flag.PrintDefaults()
}

func run(ctx context.Context, logger *zap.Logger, cfg *config.Config, stage string) error {
	runAnonymize := stage == "all" || stage == "anonymize"
	runExtract := stage == "all" || stage == "extract"
	runStack := stage == "all" || stage == "stack"

	layoutResult, err := layout.Prepare(cfg.Anonymizer.SourceRoot)
	if err != nil {
		return fmt.Errorf("could not prepare derivatives layout: %w", err)
	}
	logger.Info("derivatives layout prepared",
		zap.String("source", layoutResult.SourcePath),
		zap.String("output", layoutResult.OutputPath),
		zap.String("status", string(layoutResult.Status)))

	if runAnonymize {
		if err := runAnonymizeStage(ctx, logger, cfg, layoutResult); err != nil {
			return fmt.Errorf("anonymization stage: %w", err)
		}
	}

	if runExtract || runStack {
		metaPool, err := appdb.Open(ctx, cfg.Database.MetadataDSN)
		if err != nil {
			return fmt.Errorf("could not connect to metadata database: %w", err)
		}
		defer metaPool.Close()

		db := metadatadb.New(metaPool)
		if err := db.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("could not prepare metadata schema: %w", err)
		}

		if runExtract {
			if err := runExtractStage(ctx, logger, cfg, db, layoutResult); err != nil {
				return fmt.Errorf("extraction stage: %w", err)
			}
		}
		if runStack {
			if err := runStackStage(ctx, logger, cfg, db); err != nil {
				return fmt.Errorf("stack discovery stage: %w", err)
			}
		}
	}

	return nil
}

func runAnonymizeStage(ctx context.Context, logger *zap.Logger, cfg *config.Config, lay model.DerivativesLayout) error {
	auditPool, err := appdb.Open(ctx, cfg.Database.AuditDSN)
	if err != nil {
		return fmt.Errorf("could not connect to audit database: %w", err)
	}
	defer auditPool.Close()

	ledger := audit.New(auditPool)
	if err := ledger.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("could not prepare audit schema: %w", err)
	}

	strategy, err := buildStrategy(cfg.Anonymizer.IDStrategy, lay.SourcePath)
	if err != nil {
		return fmt.Errorf("could not build ID strategy: %w", err)
	}

	var firstDates map[string]time.Time
	if cfg.Anonymizer.MapTimepoints {
		firstDates, err = anonymizer.ComputeFirstDates(lay.SourcePath)
		if err != nil {
			return fmt.Errorf("could not compute first observed study dates: %w", err)
		}
	}

	opts := anonymizer.Options{
		SourceRoot:           lay.SourcePath,
		OutputRoot:           lay.OutputPath,
		AnonymizePatientID:   cfg.Anonymizer.AnonymizePatientID,
		MapTimepoints:        cfg.Anonymizer.MapTimepoints,
		RenamePatientFolders: cfg.Anonymizer.RenamePatientFolders,
		PreserveUIDs:         cfg.Anonymizer.PreserveUIDs,
		ScrubTags:            anonymizer.DefaultScrubTags(),
		ExcludeTags:          anonymizer.BuildExcludeTags(cfg.Anonymizer.ExcludeTags),
	}

	engine := anonymizer.NewEngine(anonymizer.Config{
		CohortName: cfg.CohortName,
		Options:    opts,
		Strategy:   strategy,
		FirstDates: firstDates,
		Workers:    cfg.Anonymizer.Workers,
	}, ledger)

	stats, err := engine.Run(ctx, func(processed, total int) {
		logger.Info("anonymization progress", zap.Int("processed", processed), zap.Int("total", total))
	})
	if err != nil {
		return err
	}
	logger.Info("anonymization complete",
		zap.Int("patients", stats.TotalPatients),
		zap.Int("leaves", stats.TotalLeaves),
		zap.Int("files_written", stats.FilesWritten),
		zap.Int("files_reused", stats.FilesReused),
		zap.Int("files_with_errors", stats.FilesWithErrors))
	return nil
}

func runExtractStage(ctx context.Context, logger *zap.Logger, cfg *config.Config, db *metadatadb.DB, lay model.DerivativesLayout) error {
	cohortID, err := db.UpsertCohort(ctx, cfg.CohortName, lay.OutputPath)
	if err != nil {
		return fmt.Errorf("could not upsert cohort: %w", err)
	}
	logger = logging.WithCohort(logger, cfg.CohortName, cohortID)

	allowed := extract.DefaultAllowedModalities()
	if len(cfg.Extraction.AllowedModalities) > 0 {
		allowed = make(map[string]bool, len(cfg.Extraction.AllowedModalities))
		for _, m := range cfg.Extraction.AllowedModalities {
			allowed[m] = true
		}
	}

	w := writer.New(db, cohortID, model.DuplicatePolicy(cfg.Extraction.DuplicatePolicy), writer.Settings{
		Initial:      cfg.Writer.InitialBatchSize,
		Minimum:      cfg.Writer.MinBatchSize,
		Maximum:      cfg.Writer.MaxBatchSize,
		TargetMillis: cfg.Writer.TargetMillis,
		Enabled:      cfg.Writer.AdaptiveEnabled,
	})

	engine := extract.NewEngine(extract.Config{
		CohortID:                cohortID,
		CohortName:              cfg.CohortName,
		RawRoot:                 cfg.Extraction.RawRoot,
		MaxWorkers:              cfg.Extraction.Workers,
		SeriesWorkersPerSubject: cfg.Extraction.SeriesWorkersPerSubject,
		BatchSize:               cfg.Writer.InitialBatchSize,
		QueueSize:               cfg.Extraction.QueueSize,
		DuplicatePolicy:         model.DuplicatePolicy(cfg.Extraction.DuplicatePolicy),
		AllowedModalities:       allowed,
		Seed:                    cfg.CohortName,
	})

	resume, err := buildResumeState(ctx, db, cohortID)
	if err != nil {
		return fmt.Errorf("could not rebuild resume state: %w", err)
	}

	queue := make(chan model.InstancePayload, cfg.Extraction.QueueSize)

	writerErr := make(chan error, 1)
	go func() {
		writerErr <- w.Run(ctx, queue)
	}()

	engineErr := engine.Run(ctx, queue, func(processed, total int) {
		logger.Info("extraction progress", zap.Int("processed", processed), zap.Int("total", total))
	}, resume)
	close(queue)

	if werr := <-writerErr; werr != nil && werr != context.Canceled {
		return fmt.Errorf("writer: %w", werr)
	}
	if engineErr != nil && engineErr != context.Canceled {
		return fmt.Errorf("engine: %w", engineErr)
	}

	snap := w.Snapshot()
	logger.Info("extraction complete",
		zap.Int64("subjects", snap.Subjects),
		zap.Int64("studies", snap.Studies),
		zap.Int64("series", snap.Series),
		zap.Int64("instances", snap.Instances))
	return nil
}

func runStackStage(ctx context.Context, logger *zap.Logger, cfg *config.Config, db *metadatadb.DB) error {
	engine := stackdiscovery.NewEngine(stackdiscovery.Config{Workers: cfg.Extraction.Workers}, db)
	stats, err := engine.Run(ctx, func(processed, total int) {
		logger.Info("stack discovery progress", zap.Int("processed", processed), zap.Int("total", total))
	})
	if err != nil {
		return err
	}
	logger.Info("stack discovery complete",
		zap.Int("series", stats.TotalSeries),
		zap.Int("series_grouped", stats.SeriesGrouped),
		zap.Int("stacks_created", stats.StacksCreated),
		zap.Int("instances_moved", stats.InstancesMoved))
	return nil
}

// buildResumeState reads back every Instance already persisted for
// cohortID and folds it into a ResumeState, so a rerun's subject-plan walk
// drops already-extracted files instead of re-queuing them (§4.7 step 1).
// On a cohort's first run this reads zero rows and returns the same empty
// state a fresh Config{} would carry.
func buildResumeState(ctx context.Context, db *metadatadb.DB, cohortID int64) (extract.ResumeState, error) {
	rows, err := db.ExtractedInstancesForCohort(ctx, cohortID)
	if err != nil {
		return extract.ResumeState{}, err
	}
	records := make([]extract.ExtractedRecord, len(rows))
	for i, r := range rows {
		records[i] = extract.ExtractedRecord{
			SeriesInstanceUID: r.SeriesInstanceUID,
			SOPInstanceUID:    r.SOPInstanceUID,
			RelPath:           r.RelPath,
		}
	}
	return extract.BuildResumeState(records), nil
}

// buildStrategy resolves cfg into one of idstrategy's five variants,
// running PID discovery first when the strategy needs a full patient-ID
// population up front (csv/sequential).
func buildStrategy(cfg config.IDStrategyConfig, sourceRoot string) (idstrategy.Strategy, error) {
	switch cfg.Kind {
	case "", "none":
		return idstrategy.None{}, nil

	case "deterministic":
		return idstrategy.Deterministic{Pattern: cfg.Pattern, Salt: cfg.Salt}, nil

	case "folder":
		var re *regexp.Regexp
		if cfg.Regex != "" {
			compiled, err := regexp.Compile(cfg.Regex)
			if err != nil {
				return nil, fmt.Errorf("could not compile id_strategy.regex: %w", err)
			}
			re = compiled
		}
		return idstrategy.Folder{DepthAfterRoot: cfg.DepthAfterRoot, Regex: re, Pattern: cfg.Pattern}, nil

	case "csv":
		table, err := idstrategy.LoadCSVMapping(cfg.CSVPath, cfg.CSVSourceColumn, cfg.CSVTargetColumn)
		if err != nil {
			return nil, err
		}
		discovered, err := idstrategy.DiscoverPIDs(sourceRoot, discoveryMode(cfg.Discovery))
		if err != nil {
			return nil, fmt.Errorf("could not discover patient IDs: %w", err)
		}
		if cfg.CSVFallback == "sequential" {
			idstrategy.FillCSVSequentialFallback(table, discovered, cfg.Pattern, cfg.StartAt)
			return idstrategy.CSV{Table: table}, nil
		}
		return idstrategy.CSVWithHashFallback{
			Table:    table,
			Fallback: idstrategy.Deterministic{Pattern: cfg.Pattern, Salt: cfg.Salt},
		}, nil

	case "sequential":
		discovered, err := idstrategy.DiscoverPIDs(sourceRoot, discoveryMode(cfg.Discovery))
		if err != nil {
			return nil, fmt.Errorf("could not discover patient IDs: %w", err)
		}
		table := idstrategy.BuildSequentialMapping(idstrategy.Dedupe(discovered), cfg.Pattern, cfg.StartAt)
		return idstrategy.Sequential{Table: table}, nil

	default:
		return nil, fmt.Errorf("unknown id_strategy.kind %q", cfg.Kind)
	}
}

func discoveryMode(name string) idstrategy.Discovery {
	switch name {
	case "one_per_study":
		return idstrategy.OnePerStudy
	case "all":
		return idstrategy.All
	default:
		return idstrategy.PerTopFolder
	}
}
