// cloudprntd is the CloudPRNT print-job broker daemon: it answers printer
// poll/fetch/confirm requests, accepts jobs from producers, and serves the
// registry/discovery/health views operators use to adopt printers.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/bvisible/CloudPRNT/internal/broker"
	"github.com/bvisible/CloudPRNT/internal/config"
	"github.com/bvisible/CloudPRNT/internal/discovery"
	"github.com/bvisible/CloudPRNT/internal/httpapi"
	"github.com/bvisible/CloudPRNT/internal/logger"
	"github.com/bvisible/CloudPRNT/internal/markup"
	"github.com/bvisible/CloudPRNT/internal/pushbridge"
	"github.com/bvisible/CloudPRNT/internal/queue"
	"github.com/bvisible/CloudPRNT/internal/rasterize"
	"github.com/bvisible/CloudPRNT/internal/registry"
	"github.com/bvisible/CloudPRNT/internal/resolver"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var processStart = time.Now()

// svcLogger is the package-level handle the log* helpers below route
// through, mirroring the teacher's bootstrap-then-structured-logging
// pattern in server/logging_helpers.go.
var svcLogger *logger.Logger

func logInfo(msg string, kv ...interface{})  { logWithLevel(logger.INFO, msg, kv...) }
func logWarn(msg string, kv ...interface{})  { logWithLevel(logger.WARN, msg, kv...) }
func logError(msg string, kv ...interface{}) { logWithLevel(logger.ERROR, msg, kv...) }
func logFatal(msg string, kv ...interface{}) {
	logError(msg, kv...)
	os.Exit(1)
}

func logWithLevel(level logger.LogLevel, msg string, kv ...interface{}) {
	if svcLogger != nil {
		switch level {
		case logger.ERROR:
			svcLogger.Error(msg, kv...)
		case logger.WARN:
			svcLogger.Warn(msg, kv...)
		default:
			svcLogger.Info(msg, kv...)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "%s [%s] %s%s\n", time.Now().Format(time.RFC3339), logger.LevelToString(level), msg, formatKeyValues(kv...))
}

func formatKeyValues(kv ...interface{}) string {
	if len(kv) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprintf("arg%d", i)
		var val interface{} = "<missing>"
		if k, ok := kv[i].(string); ok {
			key = k
		} else {
			val = kv[i]
		}
		if i+1 < len(kv) {
			val = kv[i+1]
		}
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(val))
	}
	return b.String()
}

func main() {
	configPath := flag.String("config", "config.toml", "Configuration file path")
	generateConfig := flag.Bool("generate-config", false, "Generate default config file and exit")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cloudprntd %s\n", Version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		return
	}

	if *generateConfig {
		cfg := config.DefaultBrokerConfig()
		if err := config.WriteDefaultTOML(*configPath, &cfg); err != nil {
			logFatal("failed to generate config", "error", err)
		}
		fmt.Printf("Generated default configuration at %s\n", *configPath)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run(ctx, *configPath)
}

func run(ctx context.Context, configFlag string) {
	cfg := config.DefaultBrokerConfig()

	resolved := config.ResolveConfigPath("CLOUDPRNTD", configFlag)
	if resolved == "" {
		resolved = configFlag
	}
	if _, err := os.Stat(resolved); err == nil {
		if err := config.LoadTOML(resolved, &cfg); err != nil {
			logWarn("config file exists but failed to load, using defaults", "path", resolved, "error", err)
			cfg = config.DefaultBrokerConfig()
		} else {
			logInfo("loaded configuration", "path", resolved)
		}
	} else {
		logWarn("no config file found, using defaults", "path", resolved)
	}
	config.ApplyBrokerEnvOverrides(&cfg)

	logDir, err := config.GetLogDirectory(false)
	if err != nil {
		logFatal("failed to resolve log directory", "error", err)
	}
	filePrefix := cfg.Logging.FilePrefix
	if filePrefix == "" {
		filePrefix = "cloudprntd"
	}
	maxBuffer := cfg.Logging.MaxBufferSize
	if maxBuffer <= 0 {
		maxBuffer = 1000
	}
	svcLogger = logger.New(logger.LevelFromString(cfg.Logging.Level), logDir, filePrefix, maxBuffer)
	defer svcLogger.Close()
	if cfg.Logging.MaxSizeMB > 0 || cfg.Logging.MaxAgeDays > 0 || cfg.Logging.MaxFiles > 0 {
		svcLogger.SetRotationPolicy(logger.RotationPolicy{
			Enabled:    true,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			MaxFiles:   cfg.Logging.MaxFiles,
		})
	}

	logInfo("cloudprntd starting", "version", Version, "listen_addr", cfg.ListenAddr)

	if cfg.Database.EffectiveDriver() == "sqlite" && cfg.Database.Path != "" {
		if abs, err := filepath.Abs(cfg.Database.Path); err == nil {
			cfg.Database.Path = abs
		}
	}

	store, db, dialect, err := openStore(&cfg.Database, svcLogger)
	if err != nil {
		logFatal("failed to open queue store", "error", err)
	}
	defer store.Close()
	logInfo("queue store ready", "driver", cfg.Database.EffectiveDriver())

	reg, err := registry.New(db, dialect, registry.Config{
		HeaderLogoURL:     cfg.Registry.HeaderLogoURL,
		FooterLogoURL:     cfg.Registry.FooterLogoURL,
		DefaultPaperWidth: cfg.DefaultPaperWidthMM,
	}, svcLogger)
	if err != nil {
		logFatal("failed to initialize printer registry", "error", err)
	}

	discoveryTTL := time.Duration(cfg.DiscoveryTTLSecs) * time.Second
	track, err := discovery.New(db, dialect, discoveryTTL, svcLogger)
	if err != nil {
		logFatal("failed to initialize discovery tracker", "error", err)
	}
	discoveryFeed := registry.NewFeed()
	defer discoveryFeed.Stop()
	track.SetFeed(discoveryFeed)

	var push *pushbridge.Bridge
	if cfg.PushBridge.Enabled {
		push, err = pushbridge.New(pushbridge.Config{
			BrokerURL:   cfg.PushBridge.BrokerURL,
			ClientID:    cfg.PushBridge.ClientID,
			TopicPrefix: cfg.PushBridge.TopicPrefix,
			QoS:         cfg.PushBridge.QoS,
		}, svcLogger)
		if err != nil {
			logWarn("push bridge disabled: failed to connect", "error", err)
			push = nil
		} else {
			logInfo("push bridge connected", "broker_url", cfg.PushBridge.BrokerURL)
		}
	}

	var invoiceResolver resolver.Resolver
	if resolverURL := os.Getenv("CLOUDPRNTD_INVOICE_RESOLVER_URL"); resolverURL != "" {
		invoiceResolver = resolver.NewHTTPResolver(resolverURL)
	}

	images := rasterize.New(rasterize.DitherFloydSteinberg, svcLogger)

	b := broker.New(store, reg, push, invoiceResolver, images, broker.Config{
		CodePage:          parseCodePage(cfg.CodePage),
		ColumnWidth:       0,
		PaperWidthMM:      cfg.DefaultPaperWidthMM,
		DefaultMediaTypes: cfg.DefaultMediaTypes,
		PublicBaseURL:     cfg.PublicBaseURL,
	}, svcLogger)

	deps := httpapi.Deps{
		Broker:        b,
		Store:         store,
		Discovery:     track,
		Registry:      reg,
		Log:           svcLogger,
		DiscoveryFeed: discoveryFeed,
		ProcessStart:  processStart,
	}

	mux := http.NewServeMux()
	httpapi.NewProtocolAPI(deps).RegisterRoutes(mux)
	httpapi.NewHealthAPI(deps).RegisterRoutes(mux)
	httpapi.NewIngestAPI(deps).RegisterRoutes(mux)
	httpapi.NewSettingsAPI(deps).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		logInfo("HTTP server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("HTTP server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logInfo("shutdown signal received, stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logError("HTTP server shutdown error", "error", err)
	} else {
		logInfo("HTTP server stopped gracefully")
	}
}

// openStore opens the configured queue store backend and returns it
// alongside the raw *sql.DB and Dialect, which the registry and discovery
// tracker share so every SQL-backed package stays on one connection pool.
func openStore(cfg *config.DatabaseConfig, log *logger.Logger) (queue.Store, *sql.DB, queue.Dialect, error) {
	switch cfg.EffectiveDriver() {
	case "postgres", "postgresql":
		pool := queue.PoolConfig{
			MaxOpenConns:        cfg.MaxOpenConns,
			MaxIdleConns:        cfg.MaxIdleConns,
			ConnMaxLifetimeSecs: cfg.ConnMaxLifetimeSecs,
		}
		store, err := queue.NewPostgresStore(cfg.BuildDSN(), pool, log)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store.DB(), store.Dialect(), nil
	default:
		store, err := queue.NewSQLiteStore(cfg.BuildDSN(), log)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store.DB(), store.Dialect(), nil
	}
}

func parseCodePage(s string) markup.CodePage {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cp1252", "windows-1252":
		return markup.CodePageCP1252
	default:
		return markup.CodePageCP1252
	}
}
