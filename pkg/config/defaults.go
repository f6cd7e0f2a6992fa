package config

import (
	"path/filepath"
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Called after loading configuration from file and environment so
// that partially-specified files still produce a runnable config.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "/var/lib/dirlistener"
	}

	applyNotifierDefaults(&cfg.Notifier)
	applyDirectoryDefaults(&cfg.Directory)
	applyHandlerDefaults(&cfg.Handler)
	applySupervisorDefaults(&cfg.Supervisor)
	applyAPIDefaults(&cfg.API)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyNotifierDefaults(cfg *NotifierConfig) {
	// Retries defaults to 0, which means "unlimited".
	if cfg.AliveIdleSec == 0 {
		cfg.AliveIdleSec = 300
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
}

func applyDirectoryDefaults(cfg *DirectoryConfig) {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	if cfg.Kerberos.Krb5Conf == "" && cfg.Kerberos.Enabled {
		cfg.Kerberos.Krb5Conf = "/etc/krb5.conf"
	}
}

func applyHandlerDefaults(cfg *HandlerConfig) {
	if cfg.PostrunIdleSec == 0 {
		cfg.PostrunIdleSec = 300
	}
	// NotifyOnFilterLoss default false is the zero value: silent removal
	// from the module-present set.
}

func applySupervisorDefaults(cfg *SupervisorConfig) {
	// MinFreeMiB default 0 (disabled).
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:8088"
	}
}

// GetDefaultConfig returns a fully-defaulted configuration suitable for a
// single-node, file-backed deployment. Used both by Load when no config
// file exists and by `dirlistener init` to seed a fresh one.
func GetDefaultConfig() *Config {
	dataDir := "/var/lib/dirlistener"

	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
			Profiling: ProfilingConfig{
				Enabled:  false,
				Endpoint: "http://localhost:4040",
				ProfileTypes: []string{
					"cpu", "alloc_objects", "alloc_space",
					"inuse_objects", "inuse_space", "goroutines",
				},
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		ShutdownTimeout: 30 * time.Second,
		DataDir:         dataDir,
		Notifier: NotifierConfig{
			Address:      "127.0.0.1:65535",
			Retries:      0,
			AliveIdleSec: 300,
			DialTimeout:  10 * time.Second,
			ReadTimeout:  5 * time.Minute,
		},
		Directory: DirectoryConfig{
			Address:     "ldap://127.0.0.1:389",
			BaseDN:      "dc=example,dc=com",
			Retries:     0,
			ReadTimeout: 5 * time.Minute,
		},
		Txlog: TxlogConfig{
			Enabled: true,
		},
		Handler: HandlerConfig{
			ModuleDirs:         []string{filepath.Join(dataDir, "handlers")},
			PostrunIdleSec:     300,
			NotifyOnFilterLoss: false,
		},
		Supervisor: SupervisorConfig{
			MinFreeMiB: 0,
		},
		API: APIConfig{
			Enabled: true,
			Address: "127.0.0.1:8088",
		},
	}

	return cfg
}
