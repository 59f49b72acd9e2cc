package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/catalog"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/config"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/indicator"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/instrument"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/lab"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/platform/middleware"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/platform/ws"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/source"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "calidad-server",
		Short: "Quality indicator API for dialysis centers",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(catalogsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the indicator API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute a batch of indicators once and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			sources, _ := cmd.Flags().GetStringSlice("sources")
			indicators, _ := cmd.Flags().GetStringSlice("indicators")
			return runBatch(start, end, sources, indicators)
		},
	}
	cmd.Flags().String("start", "", "Period start (DD-MM-YYYY)")
	cmd.Flags().String("end", "", "Period end (DD-MM-YYYY)")
	cmd.Flags().StringSlice("sources", nil, "Source codes (default: all configured)")
	cmd.Flags().StringSlice("indicators", nil, "Indicator id_codes (default: all in catalog)")
	return cmd
}

func catalogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalogs",
		Short: "Load the catalog bundle and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			bundle, err := catalog.Load(cfg.CatalogDir, logger)
			if err != nil {
				return err
			}
			fmt.Printf("catalog dir:   %s\n", cfg.CatalogDir)
			fmt.Printf("indicators:    %d\n", bundle.Indicators.Len())
			fmt.Printf("equivalences:  %d\n", bundle.Equivalences.Len())
			for _, def := range bundle.Indicators.All() {
				fmt.Printf("  %-12s %-12s %s\n", def.IDCode, def.Unit, def.Label)
			}
			return nil
		},
	}
}

// loadConfig loads the configuration and refuses to continue when it is
// not runnable (no catalog directory, no sources, non-positive timeouts).
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// buildService wires the catalog bundle, source registry and executor into
// an indicator service. Shared by serve and the one-shot run command.
func buildService(cfg *config.Config, logger zerolog.Logger) (*indicator.Service, *source.Registry, *catalog.Bundle, error) {
	bundle, err := catalog.Load(cfg.CatalogDir, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading catalogs: %w", err)
	}

	registry := source.NewRegistry(cfg)
	exec := source.NewExecutor(source.FirebirdDialer{}, cfg.ConnectTimeout(), cfg.QueryTimeout(), logger)
	svc := indicator.NewService(bundle, registry, exec, logger)
	return svc, registry, bundle, nil
}

func runServer() error {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	svc, registry, bundle, err := buildService(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build indicator service")
	}
	logger.Info().
		Int("sources", registry.Len()).
		Int("indicators", bundle.Indicators.Len()).
		Msg("catalogs loaded")

	// Run persistence is optional. Without a DATABASE_URL the API still
	// computes batches; GET /runs/:id answers 404.
	ctx := context.Background()
	var runStore indicator.RunStore
	if cfg.DatabaseURL != "" {
		pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		rs := store.NewRunStore(pool)
		if err := rs.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure run schema")
		}
		runStore = rs
		logger.Info().Msg("connected to run store")
	} else {
		logger.Warn().Msg("DATABASE_URL not set; run persistence disabled")
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
	e.Use(middleware.RequestTimeout(cfg.QueryTimeout() * time.Duration(registry.Len()+1)))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Progress stream
	hub := ws.NewHub(logger)
	ws.NewHandler(hub).RegisterRoutes(e.Group(""))

	// API
	apiV1 := e.Group("/api/v1")
	indicator.NewHandler(svc, runStore, hub, logger).RegisterRoutes(apiV1)

	exec := source.NewExecutor(source.FirebirdDialer{}, cfg.ConnectTimeout(), cfg.QueryTimeout(), logger)
	collector := instrument.NewCollector(bundle.Tests, exec, logger)
	instrument.NewHandler(collector, registry).RegisterRoutes(apiV1)

	labs := lab.NewCollector(bundle.Equivalences, exec, logger)
	lab.NewHandler(labs, registry).RegisterRoutes(apiV1)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "2.0.0",
		})
	})

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

// runBatch computes the requested indicators once, reporting progress on
// stderr and printing the run as JSON on stdout.
func runBatch(start, end string, sources, indicators []string) error {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc, registry, bundle, err := buildService(cfg, logger)
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		for _, d := range registry.All() {
			sources = append(sources, d.Code)
		}
	}
	if len(indicators) == 0 {
		for _, def := range bundle.Indicators.All() {
			indicators = append(indicators, def.IDCode)
		}
	}

	req := indicator.RunRequest{
		Start:      start,
		End:        end,
		Sources:    sources,
		Indicators: indicators,
	}

	run, err := svc.Run(context.Background(), req, func(p indicator.Progress) {
		fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", p.Percent, p.Message)
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
