package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/hl7fhir/internal/config"
	"github.com/ehr/hl7fhir/internal/platform/console"
	"github.com/ehr/hl7fhir/internal/platform/hl7v2"
	"github.com/ehr/hl7fhir/internal/platform/middleware"
	"github.com/ehr/hl7fhir/internal/platform/telemetry"
	"github.com/ehr/hl7fhir/internal/translate"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hl7fhir",
		Short: "HL7 v2 ADT to FHIR Patient Bundle translator",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(translateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (and the MLLP listener when MLLP_ADDR is set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func translateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate [file]",
		Short: "Translate one HL7 v2 message from a file or stdin and print the Bundle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			compact, _ := cmd.Flags().GetBool("compact")
			return runTranslate(in, cmd.OutOrStdout(), !compact)
		},
	}
	cmd.Flags().Bool("compact", false, "Print the Bundle without indentation")
	cmd.SilenceUsage = true
	return cmd
}

// runTranslate reads a whole message from in and writes the Bundle to out.
func runTranslate(in io.Reader, out io.Writer, indent bool) error {
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}

	bundle, err := translate.Translate(string(raw))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(bundle)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

// newServer builds the echo instance with the full middleware chain and all
// routes registered. metrics may be nil.
func newServer(cfg *config.Config, translator *translate.Translator, metrics *telemetry.Metrics, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Slow uploads are cut off at the connection.
	e.Server.ReadHeaderTimeout = readHeaderTimeout
	e.Server.ReadTimeout = cfg.RequestTimeout

	// Global middleware
	e.Use(middleware.RequestID())
	if metrics != nil {
		e.Use(metrics.Middleware())
	}
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	h := translate.NewHandler(translator, logger)

	// Health check
	e.GET("/health", h.Health)
	if metrics != nil {
		e.GET("/metrics", metrics.Handler())
	}

	api := e.Group("/api", middleware.RateLimit(cfg.RateLimit()))
	h.RegisterRoutes(api)

	if cfg.ConsoleEnabled {
		console.Register(e)
	}
	return e
}

const readHeaderTimeout = 5 * time.Second

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	var (
		metrics *telemetry.Metrics
		opts    []translate.Option
	)
	if cfg.MetricsEnabled {
		metrics = telemetry.New()
		opts = append(opts, translate.WithCounter(metrics))
	}
	translator := translate.New(opts...)
	e := newServer(cfg, translator, metrics, logger)

	// HL7v2 MLLP TCP listener (optional, started when MLLP_ADDR is set)
	if cfg.MLLPAddr != "" {
		mllpServer := hl7v2.NewMLLPServer(cfg.MLLPAddr, translator.MLLPHandler(logger), logger)
		if err := mllpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("MLLP server failed")
		}
		defer mllpServer.Stop()
		logger.Info().Str("addr", mllpServer.Addr()).Msg("MLLP server started")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().
			Str("addr", addr).
			Bool("console", cfg.ConsoleEnabled).
			Bool("metrics", metrics != nil).
			Float64("rate_limit_rps", cfg.RateLimitRPS).
			Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
