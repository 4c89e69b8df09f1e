package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/wilketob/amztec-mcp-server/internal/api"
	"github.com/wilketob/amztec-mcp-server/internal/auth"
	"github.com/wilketob/amztec-mcp-server/internal/config"
	"github.com/wilketob/amztec-mcp-server/internal/credential"
	"github.com/wilketob/amztec-mcp-server/internal/dispatch"
	"github.com/wilketob/amztec-mcp-server/internal/metering"
	"github.com/wilketob/amztec-mcp-server/internal/metrics"
	mcpserver "github.com/wilketob/amztec-mcp-server/internal/mcp"
	"github.com/wilketob/amztec-mcp-server/internal/ratelimit"
	"github.com/wilketob/amztec-mcp-server/internal/spapi"
	"github.com/wilketob/amztec-mcp-server/internal/token"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the amztec gateway server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cipher, err := credential.NewCipher(os.Getenv("AMZTEC_MASTER_KEY"))
	if err != nil {
		return err
	}
	creds, err := credential.Load(cfg.Credentials.File, cipher)
	if err != nil {
		return err
	}
	slog.Info("credentials loaded", "tenants", len(creds.Tenants()))

	m := metrics.New()

	keyring, err := auth.NewKeyring(cfg.Gateway.APIKeys)
	if err != nil {
		return err
	}
	if keyring.Empty() {
		slog.Warn("no gateway api keys configured, tool endpoints are unauthenticated")
	}

	retry := spapi.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Jitter:      cfg.Retry.Jitter,
	}
	httpClient := &http.Client{Timeout: cfg.Upstream.Timeout}

	lwa := spapi.NewLWAClient(cfg.Upstream.AuthEndpoint, httpClient, retry)

	tokens := token.NewManager(lwa, cfg.Token.SafetyMargin)
	tokens.OnRefresh = func(tenantID string, err error) {
		m.IncTokenRefresh(tenantID, err)
		if err != nil {
			slog.Warn("token refresh failed", "tenant", tenantID, "error", err)
		}
	}

	limiter := ratelimit.New(func(operation string) (capacity, refillRate float64) {
		ol := cfg.RateLimit.ForOperation(operation)
		return ol.Capacity, ol.RefillRate
	})

	client := spapi.NewClient(spapi.Options{
		Endpoint:   cfg.Upstream.Endpoint,
		Region:     cfg.Upstream.Region,
		HTTPClient: httpClient,
		Retry:      retry,
		Tokens:     tokens,
	})

	dispatcher := dispatch.New(creds, tokens, limiter, client, cfg.Dispatch.WaitCeiling)
	dispatcher.SetMetrics(m)

	// Usage metering is optional: without a database URL invocations are
	// served but not persisted.
	var collector *metering.Collector
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		slog.Info("connected to database")

		m.RegisterDBPool(func() (total, idle, acquired int32) {
			st := pool.Stat()
			return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
		})

		collector = metering.NewCollector(metering.NewStore(pool), cfg.Metering.BatchSize, cfg.Metering.FlushInterval)
		collector.SetGauge(m.CollectorBufferSize)
		go collector.Start(ctx)
		dispatcher.SetCollector(collector)
	} else {
		slog.Warn("no database configured, usage metering disabled")
	}

	mcpSrv := mcpserver.NewServer(dispatcher, version)

	router := api.NewRouter(api.RouterDeps{
		Dispatcher: dispatcher,
		Keyring:    keyring,
		Metrics:    m,
		MCPHandler: mcpserver.NewHTTPHandler(mcpSrv),
		Ready:      lwa.Ping,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// SIGHUP reloads the credential mapping without a restart.
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			if err := creds.Reload(); err != nil {
				slog.Error("credential reload failed", "error", err)
				continue
			}
			slog.Info("credentials reloaded", "tenants", len(creds.Tenants()))
		}
	}()

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if collector != nil {
		collector.Stop()
	}

	return srv.Shutdown(shutdownCtx)
}
