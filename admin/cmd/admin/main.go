package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/census/admin/internal/admin"
	"github.com/malbeclabs/census/census/pkg/engine/clickhouse"
	"github.com/malbeclabs/census/census/pkg/engine/duckdb"
	"github.com/malbeclabs/census/census/pkg/storage"
	"github.com/malbeclabs/census/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	configFlag := flag.String("config", "data-config.json", "dataset configuration document (or set CENSUS_CONFIG_PATH env var)")

	// Engine configuration
	engineFlag := flag.String("engine", duckdb.Name, "analytical engine: duckdb or clickhouse (or set CENSUS_ENGINE env var)")
	dbPathFlag := flag.String("db-path", "", "DuckDB database file (or set CENSUS_DB_PATH env var)")
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", clickhouse.DefaultDatabase, "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// Storage configuration
	storageFlag := flag.String("storage", "", "storage mode: local or s3 (or set CENSUS_STORAGE env var)")
	s3BucketFlag := flag.String("s3-bucket", "", "S3 bucket (or set CENSUS_S3_BUCKET env var)")
	s3PrefixFlag := flag.String("s3-prefix", "", "S3 key prefix (or set CENSUS_S3_PREFIX env var)")

	// Commands
	initTablesFlag := flag.Bool("init-tables", false, "Materialize every missing catalog table")
	listTablesFlag := flag.Bool("list-tables", false, "List catalog tables and whether they are loaded")
	resetDBFlag := flag.Bool("reset-db", false, "Drop every catalog table from the engine")
	convertCSVFlag := flag.Bool("convert-csv", false, "Convert raw/<folder>/*.csv to processed/<folder>/*.parquet under --data-dir")
	describeFlag := flag.Bool("describe", false, "Print the variables of --type/--year/--level")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	// Command options
	dataDirFlag := flag.String("data-dir", "data", "Data directory for --convert-csv")
	maxConcurrencyFlag := flag.Int("max-concurrency", 4, "Maximum concurrent conversions")
	typeFlag := flag.String("type", "", "Dataset type for --describe")
	yearFlag := flag.Int("year", 0, "Census year for --describe")
	levelFlag := flag.String("level", "", "Aggregation level for --describe")

	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	log := logger.New(*verboseFlag)

	overrides := map[string]*string{
		"CENSUS_CONFIG_PATH":  configFlag,
		"CENSUS_ENGINE":       engineFlag,
		"CENSUS_DB_PATH":      dbPathFlag,
		"CLICKHOUSE_ADDR_TCP": clickhouseAddrFlag,
		"CLICKHOUSE_DATABASE": clickhouseDatabaseFlag,
		"CLICKHOUSE_USERNAME": clickhouseUsernameFlag,
		"CLICKHOUSE_PASSWORD": clickhousePasswordFlag,
		"CENSUS_STORAGE":      storageFlag,
		"CENSUS_S3_BUCKET":    s3BucketFlag,
		"CENSUS_S3_PREFIX":    s3PrefixFlag,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *convertCSVFlag {
		_, err := admin.ConvertCSV(ctx, log, os.Stdout, admin.ConvertConfig{
			DataDir:        *dataDirFlag,
			MaxConcurrency: *maxConcurrencyFlag,
			DryRun:         *dryRunFlag,
		})
		return err
	}

	if !*initTablesFlag && !*listTablesFlag && !*resetDBFlag && !*describeFlag {
		flag.Usage()
		return nil
	}

	if *engineFlag == clickhouse.Name && *clickhouseAddrFlag == "" {
		return fmt.Errorf("--clickhouse-addr is required for the clickhouse engine")
	}
	env, err := admin.Open(ctx, admin.Options{
		Logger:     log,
		ConfigPath: *configFlag,
		Engine:     *engineFlag,
		DuckDB:     duckdb.Config{Path: *dbPathFlag},
		ClickHouse: clickhouse.Config{
			Addr:     *clickhouseAddrFlag,
			Database: *clickhouseDatabaseFlag,
			Username: *clickhouseUsernameFlag,
			Password: *clickhousePasswordFlag,
			Secure:   *clickhouseSecureFlag,
		},
		Storage: storage.Options{
			Mode:   *storageFlag,
			Bucket: *s3BucketFlag,
			Prefix: *s3PrefixFlag,
		},
	})
	if err != nil {
		return err
	}
	defer env.Close()

	switch {
	case *initTablesFlag:
		return admin.InitTables(ctx, os.Stdout, env.Loader)
	case *listTablesFlag:
		return admin.ListTables(ctx, os.Stdout, env.Executor, env.Loader)
	case *resetDBFlag:
		return admin.ResetDB(ctx, os.Stdout, os.Stdin, env.Loader, *dryRunFlag, *yesFlag)
	case *describeFlag:
		if *typeFlag == "" || *yearFlag == 0 || *levelFlag == "" {
			return fmt.Errorf("--type, --year and --level are required for --describe")
		}
		return admin.Describe(ctx, os.Stdout, env.Service, *typeFlag, *yearFlag, *levelFlag)
	}
	return nil
}
