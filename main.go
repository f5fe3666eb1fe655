package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/veilcheck-inc/veilcheck-engine/migrations"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/aliases"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/cache"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/config"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/database"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/llm"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/logging"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/matcher"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/repositories"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/scheduler"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	schemaPath := flag.String("schema", "", "path to schema JSON file (table name to column list)")
	regulationsArg := flag.String("regulations", "GDPR", "comma-separated regulations (GDPR, HIPAA, CCPA)")
	companyID := flag.String("company", "", "company scope for aliases and caching")
	region := flag.String("region", "", "region scope for aliases and caching")
	outputPath := flag.String("output", "", "write full session JSON to this path (default: stdout summary only)")
	flag.Parse()

	if *schemaPath == "" {
		flag.Usage()
		log.Fatal("missing required -schema flag")
	}

	cfg, err := config.Load(*configPath, Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *schemaPath, *regulationsArg, *companyID, *region, *outputPath); err != nil {
		logger.Fatal("classification failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, schemaPath, regulationsArg, companyID, region, outputPath string) error {
	tables, err := loadSchema(schemaPath)
	if err != nil {
		return err
	}

	regulations, err := parseRegulations(regulationsArg)
	if err != nil {
		return err
	}

	db, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		// The engine still classifies without storage; aliases and
		// caching are just unavailable.
		logger.Warn("database unavailable, running without aliases and cache",
			zap.String("error", logging.SanitizeError(err)))
		db = nil
	}
	if db != nil {
		defer db.Close()
	}

	var aliasStore *aliases.Store
	resultCache := cache.Cache(cache.NewNoop())
	if db != nil {
		aliasStore = aliases.NewStore(
			repositories.NewAliasRepository(db),
			repositories.NewLearningRepository(db),
			cfg.Classifier.FuzzyThreshold,
			logger,
		)
		if cfg.Classifier.EnableCache {
			resultCache = repositories.NewPostgresCache(db)
		}
	}

	var client llm.Client
	if cfg.Classifier.EnableAI && cfg.Provider.Enabled() {
		client, err = llm.NewClient(&cfg.Provider, logger)
		if err != nil {
			return fmt.Errorf("failed to create classification provider: %w", err)
		}
	}
	breaker := llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig())
	sched := scheduler.NewScheduler(client, breaker, &cfg.Batch, cfg.Provider.Temperature, logger)

	library, err := matcher.DefaultLibrary()
	if err != nil {
		return fmt.Errorf("failed to load pattern library: %w", err)
	}
	m := matcher.New(library, matcher.Config{FuzzyThreshold: cfg.Classifier.FuzzyThreshold})

	orchestrator := services.NewOrchestrator(m, aliasStore, resultCache, sched, &cfg.Classifier, logger)

	session, err := orchestrator.ClassifySchema(ctx, &services.ClassifyRequest{
		Tables:      tables,
		Regulations: regulations,
		Scope:       models.Scope{CompanyID: companyID, Region: region},
	})
	if err != nil {
		return err
	}

	if outputPath != "" {
		payload, err := json.MarshalIndent(session, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}
		if err := os.WriteFile(outputPath, payload, 0o644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	printSummary(session)
	return nil
}

func connectDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	connStr := cfg.Database.ConnectionString()

	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	if err := database.RunMigrations(sqlDB, migrations.FS, ".", logger); err != nil {
		return nil, err
	}

	return database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: cfg.Database.MaxConnections,
	})
}

func loadSchema(path string) (models.SchemaSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var tables models.SchemaSet
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	// Column descriptors carry their table name redundantly; fill it in
	// when the input relies on the map key alone.
	for tableName, columns := range tables {
		for i := range columns {
			if columns[i].TableName == "" {
				columns[i].TableName = tableName
			}
		}
	}

	return tables, nil
}

func parseRegulations(arg string) ([]models.Regulation, error) {
	var regulations []models.Regulation
	for _, part := range strings.Split(arg, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		reg := models.Regulation(strings.ToUpper(part))
		if !reg.IsKnown() {
			return nil, fmt.Errorf("unknown regulation %q (expected GDPR, HIPAA or CCPA)", part)
		}
		regulations = append(regulations, reg)
	}
	return regulations, nil
}

func printSummary(session *models.ClassificationSession) {
	fmt.Printf("Session %s: %s\n", session.ID, session.Status)
	fmt.Printf("  Fields: %d total, %d local, %d cached, %d AI, %d fallback\n",
		session.TotalFields, session.LocalHits, session.CacheHits, session.AIHits, session.FallbackCount)

	if session.Report != nil {
		fmt.Printf("  Local coverage: %.1f%% (target met: %v)\n",
			session.Report.LocalCoverageRate*100, session.Report.LocalTargetMet)
		fmt.Printf("  AI usage: %.1f%% (target met: %v)\n",
			session.Report.AIUsageRate*100, session.Report.AITargetMet)
	}

	sensitive := 0
	for _, r := range session.Results {
		if r.IsSensitive {
			sensitive++
		}
	}
	fmt.Printf("  Sensitive fields: %d\n", sensitive)

	for _, r := range session.Results {
		if !r.IsSensitive {
			continue
		}
		regs := make([]string, 0, len(r.Regulations))
		for _, reg := range r.Regulations {
			regs = append(regs, string(reg))
		}
		fmt.Printf("    %-40s %-14s %-8s %.2f [%s] (%s)\n",
			r.FieldKey(), r.Category, r.Risk, r.Confidence, strings.Join(regs, ","), r.Method)
	}
}
