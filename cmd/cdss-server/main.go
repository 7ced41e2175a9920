package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/adamlmu/CDSS-mini-project-pt1/internal/config"
	"github.com/adamlmu/CDSS-mini-project-pt1/internal/domain/loinc"
	"github.com/adamlmu/CDSS-mini-project-pt1/internal/domain/observation"
	"github.com/adamlmu/CDSS-mini-project-pt1/internal/domain/patient"
	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/auth"
	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/clock"
	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/db"
	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/middleware"
	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/sandbox"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cdss-server",
		Short: "Bitemporal clinical measurement store",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importLoincCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// stores bundles the repositories for whichever backend DATABASE_URL selects.
type stores struct {
	facts    observation.Repository
	patients patient.PatientRepository
	concepts loinc.ConceptRepository

	pool  *pgxpool.Pool // nil when running on sqlite
	sqldb *sql.DB       // nil when running on postgres
}

func (s *stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.sqldb != nil {
		s.sqldb.Close()
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.UsesPostgres() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return &stores{
			facts:    observation.NewRepoPG(pool),
			patients: patient.NewPatientRepoPG(pool),
			concepts: loinc.NewConceptRepoPG(pool),
			pool:     pool,
		}, nil
	}

	dbh, err := db.OpenSQLite(cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.EnsureSQLiteSchema(ctx, dbh); err != nil {
		dbh.Close()
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return &stores{
		facts:    observation.NewRepoSQLite(dbh),
		patients: patient.NewPatientRepoSQLite(dbh),
		concepts: loinc.NewConceptRepoSQLite(dbh),
		sqldb:    dbh,
	}, nil
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer st.Close()
	logger.Info().Bool("postgres", cfg.UsesPostgres()).Msg("connected to database")

	clk := clock.System{}

	// Services
	conceptSvc := loinc.NewService(st.concepts, logger)
	patientSvc := patient.NewService(st.patients)
	factSvc := observation.NewService(st.facts, clk, logger)

	// Optional dictionary seeding on boot
	if cfg.LoincCSV != "" {
		importer := loinc.NewImporter(st.concepts, logger)
		if _, err := importer.ImportFile(ctx, cfg.LoincCSV); err != nil {
			logger.Fatal().Err(err).Str("file", cfg.LoincCSV).Msg("loinc import failed")
		}
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if d, err := time.ParseDuration(cfg.RequestTimeout); err == nil && d > 0 {
		e.Use(middleware.RequestTimeout(d))
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware([]byte(cfg.AuthSecret)))
	}

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Domain handlers
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	loinc.NewHandler(conceptSvc).RegisterRoutes(apiV1)
	observation.NewHandler(factSvc, clk, conceptSvc).RegisterRoutes(apiV1)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if st.pool != nil {
		e.GET("/health/db", db.HealthHandler(st.pool))
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations (postgres only)",
	}

	withPool := func(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, dir string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.UsesPostgres() {
				return fmt.Errorf("migrations apply to postgres only; the sqlite backend creates its schema on startup")
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()
			return fn(ctx, cfg, pool, dir)
		}
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, dir string) error {
			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		}),
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default from MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, dir string) error {
			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		}),
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default from MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func importLoincCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-loinc",
		Short: "Load the LOINC dictionary from a CSV export",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			force, _ := cmd.Flags().GetBool("force")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.LoincCSV
			}
			if file == "" {
				return fmt.Errorf("no CSV given: pass --file or set LOINC_CSV")
			}

			ctx := context.Background()
			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			importer := loinc.NewImporter(st.concepts, logger)
			importer.Force = force
			n, err := importer.ImportFile(ctx, file)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d concept(s).\n", n)
			return nil
		},
	}
	cmd.Flags().String("file", "", "Path to the LOINC CSV export")
	cmd.Flags().Bool("force", false, "Reload even when the dictionary is already seeded")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate synthetic patients and measurements",
		RunE: func(cmd *cobra.Command, args []string) error {
			seedCfg := sandbox.DefaultSeedConfig()
			seedCfg.MalePatients, _ = cmd.Flags().GetInt("male")
			seedCfg.FemalePatients, _ = cmd.Flags().GetInt("female")
			seedCfg.Seed, _ = cmd.Flags().GetInt64("seed")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			clk := clock.System{}
			seeder := sandbox.NewSeeder(
				patient.NewService(st.patients),
				observation.NewService(st.facts, clk, logger),
				clk,
				logger,
			)
			res, err := seeder.Seed(ctx, seedCfg)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d patient(s) with %d observation(s).\n", res.Patients, res.Observations)
			return nil
		},
	}
	defaults := sandbox.DefaultSeedConfig()
	cmd.Flags().Int("male", defaults.MalePatients, "Number of male patients to generate")
	cmd.Flags().Int("female", defaults.FemalePatients, "Number of female patients to generate")
	cmd.Flags().Int64("seed", defaults.Seed, "Random seed for reproducible data")
	return cmd
}
