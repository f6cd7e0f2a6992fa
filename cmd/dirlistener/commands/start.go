package commands

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dirlistener/dirlistener/internal/bytesize"
	"github.com/dirlistener/dirlistener/internal/logger"
	"github.com/dirlistener/dirlistener/internal/telemetry"
	"github.com/dirlistener/dirlistener/pkg/api"
	"github.com/dirlistener/dirlistener/pkg/api/auth"
	"github.com/dirlistener/dirlistener/pkg/cache/badger"
	"github.com/dirlistener/dirlistener/pkg/config"
	"github.com/dirlistener/dirlistener/pkg/directory"
	"github.com/dirlistener/dirlistener/pkg/dispatcher"
	"github.com/dirlistener/dirlistener/pkg/handler"
	"github.com/dirlistener/dirlistener/pkg/metrics"
	"github.com/dirlistener/dirlistener/pkg/notifier"
	"github.com/dirlistener/dirlistener/pkg/supervisor"
	"github.com/dirlistener/dirlistener/pkg/txlog"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the directory listener",
	Long: `Start the directory listener in the foreground.

Connects to the notifier, opens the authoritative directory, loads
handler modules, and drives the replication pipeline until interrupted.
SIGTERM/SIGINT drain the in-flight transaction before exiting; SIGHUP
rescans the configured handler module directories.

Examples:
  dirlistener start
  dirlistener start --config /etc/dirlistener/config.yaml`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dirlistener",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dirlistener",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("dirlistener starting",
		"version", Version,
		"config_source", getConfigSource(GetConfigFile()),
		"data_dir", cfg.DataDir)
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	// promhttp.Handler() (wired into the admin router) serves the default
	// global registry, so the dispatcher metrics are registered there too
	// rather than against a private registry.
	dispatcherMetrics := metrics.NewDispatcher(prometheus.DefaultRegisterer)

	store, err := badger.Open(badger.Options{Path: filepath.Join(cfg.DataDir, "cache")})
	if err != nil {
		return fmt.Errorf("failed to open entry cache: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close entry cache", "error", err)
		}
	}()

	notifierClient := notifier.New(notifier.Config{
		Address:     cfg.Notifier.Address,
		MaxRetries:  cfg.Notifier.Retries,
		DialTimeout: cfg.Notifier.DialTimeout,
		ReadTimeout: cfg.Notifier.ReadTimeout,
	})
	if err := notifierClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to notifier: %w", err)
	}
	defer notifierClient.Close()

	directoryClient := directory.New(directory.Config{
		Address:      cfg.Directory.Address,
		BindDN:       cfg.Directory.BindDN,
		BindPassword: cfg.Directory.BindPassword,
		BaseDN:       cfg.Directory.BaseDN,
		MaxRetries:   cfg.Directory.Retries,
		DialTimeout:  cfg.Directory.DialTimeout,
		ReadTimeout:  cfg.Directory.ReadTimeout,
		Kerberos: directory.KerberosConfig{
			Enabled:          cfg.Directory.Kerberos.Enabled,
			KeytabPath:       cfg.Directory.Kerberos.KeytabPath,
			ServicePrincipal: cfg.Directory.Kerberos.ServicePrincipal,
			Krb5Conf:         cfg.Directory.Kerberos.Krb5Conf,
			Realm:            cfg.Directory.Kerberos.Realm,
		},
	})
	if err := directoryClient.Open(ctx); err != nil {
		return fmt.Errorf("failed to open directory connection: %w", err)
	}
	defer directoryClient.Close()

	var txLog *txlog.Log
	if cfg.Txlog.Enabled {
		txLog, err = txlog.Open(filepath.Join(cfg.DataDir, "transaction"))
		if err != nil {
			return fmt.Errorf("failed to open transaction log: %w", err)
		}
		defer func() {
			if err := txLog.Close(); err != nil {
				logger.Error("failed to close transaction log", "error", err)
			}
		}()
	}

	modules, loadErrs := handler.ScanDirs(cfg.Handler.ModuleDirs)
	for _, lerr := range loadErrs {
		logger.Warn("handler module load error", "error", lerr)
	}
	logger.Info("handler modules loaded", "count", len(modules))

	handlerState, err := handler.OpenStateStore(filepath.Join(cfg.DataDir, "cache", "handlers"))
	if err != nil {
		return fmt.Errorf("failed to open handler state store: %w", err)
	}

	rt := handler.NewRuntime(modules, handlerState, handler.RuntimeOptions{
		NotifyOnFilterLoss: cfg.Handler.NotifyOnFilterLoss,
		DropPrivilegesTo:   cfg.Handler.DropPrivilegesTo,
		Metrics:            dispatcherMetrics,
	})
	rt.Initialize()
	defer rt.Clean()

	rt.SetData("base_dn", cfg.Directory.BaseDN)
	rt.SetData("data_dir", cfg.DataDir)

	disp := dispatcher.New(dispatcher.Config{
		NotifierStreamID: cfg.Notifier.Address,
		IdleThreshold:    time.Duration(cfg.Notifier.AliveIdleSec) * time.Second,
	}, notifierClient, directoryClient, store, txLog, rt)
	disp.Metrics = dispatcherMetrics

	quarantine := supervisor.NewQuarantineChecker(cfg.DataDir)

	var watchdog *supervisor.FreeSpaceWatchdog
	if cfg.Supervisor.MinFreeMiB > 0 {
		watchdog = &supervisor.FreeSpaceWatchdog{
			Paths:   []string{cfg.DataDir},
			MinFree: bytesize.ByteSize(cfg.Supervisor.MinFreeMiB) * bytesize.MiB,
		}
	}

	sup := supervisor.New(disp, quarantine, watchdog, rt, cfg.Handler.ModuleDirs)

	var httpServer *http.Server
	if cfg.API.Enabled {
		httpServer, err = newAdminServer(cfg, store, rt, disp, sup)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("admin HTTP surface listening", "address", cfg.API.Address)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin HTTP surface stopped unexpectedly", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("admin HTTP surface shutdown error", "error", err)
			}
		}()
	}

	logger.Info("dirlistener ready, entering replication loop")
	return sup.Run(ctx)
}

// newAdminServer wires the bearer-authenticated admin/status HTTP
// surface around the same dispatcher/runtime/store the replication
// pipeline uses.
func newAdminServer(cfg *config.Config, store *badger.Store, rt *handler.Runtime, disp *dispatcher.Dispatcher, sup *supervisor.Supervisor) (*http.Server, error) {
	if cfg.Admin.JWTSecret == "" {
		return nil, fmt.Errorf("admin.jwt_secret is not set; run 'dirlistener init' or set it before enabling the admin API")
	}

	jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: cfg.Admin.JWTSecret})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize admin JWT service: %w", err)
	}

	router := api.NewRouter(api.Deps{
		Store:           store,
		Runtime:         rt,
		Cursor:          disp,
		Errors:          sup.Errors,
		Quarantine:      sup.Quarantine,
		JWT:             jwtService,
		AdminSecretHash: cfg.Admin.SecretHash,
	})

	return &http.Server{
		Addr:              cfg.API.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}
