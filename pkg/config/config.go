package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the Directory Listener's static configuration.
//
// This structure captures every knob a long-running listener process
// needs before it can start its event loop: where the notifier and
// directory live, where local state is kept, which handler modules to
// load, and the ambient logging/telemetry/admin surface.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DIRLISTENER_*, with '.' in a key written as
//     '_'), which override keys present in the file (highest priority)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// No command-line flag is bound to a configuration key; --config only
// selects the file. When no file is found, Load returns the defaults
// without reading the environment.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and Pyroscope
	// continuous profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics holds Prometheus settings that `dirlistener start` does not
	// read; metrics are served on the admin API's /metrics route.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is validated and defaulted (30s) but is not read by
	// `dirlistener start`: on SIGTERM/SIGINT the supervisor waits for the
	// in-flight transaction to finish with no time bound.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// DataDir is the root of the on-disk layout: it holds cache/, the
	// transaction/ directory (transaction.log and its transaction.idx
	// index), and failed.ldif. The log is not written as top-level files
	// named transaction and transaction.index.
	DataDir string `mapstructure:"data_dir" validate:"required" yaml:"data_dir"`

	// Notifier configures the notifier protocol client.
	Notifier NotifierConfig `mapstructure:"notifier" yaml:"notifier"`

	// Directory configures the authoritative directory client.
	Directory DirectoryConfig `mapstructure:"directory" yaml:"directory"`

	// Txlog configures the optional transaction file.
	Txlog TxlogConfig `mapstructure:"txlog" yaml:"txlog"`

	// Handler configures the handler runtime: module directories, idle
	// timers, and the notify-on-filter-loss open question.
	Handler HandlerConfig `mapstructure:"handler" yaml:"handler"`

	// Supervisor configures the free-space watchdog and quarantine
	// sentinel.
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`

	// API configures the bearer-authenticated admin/health HTTP surface.
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Admin contains the bootstrap admin bearer secret, set by
	// `dirlistener init`.
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file
	// path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing. When
// enabled, the dispatcher emits one span per transaction with a child
// span per handler invocation.
type TelemetryConfig struct {
	Enabled    bool              `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string            `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool              `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64           `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
	Profiling  ProfilingConfig   `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig holds Prometheus metrics settings. Neither field is read
// by `dirlistener start`; see Config.Metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// NotifierConfig configures the notifier protocol client.
type NotifierConfig struct {
	// Address is host:port of the notifier's line-protocol socket.
	Address string `mapstructure:"address" validate:"required" yaml:"address"`

	// Retries bounds reconnect attempts.
	Retries int `mapstructure:"retries" validate:"gte=0" yaml:"retries"`

	// AliveIdleSec is how long the pipeline may be idle before an ALIVE
	// keepalive is issued. Default 300.
	AliveIdleSec int `mapstructure:"alive_idle_sec" validate:"gte=0" yaml:"alive_idle_sec"`

	// DialTimeout bounds the TCP dial for a (re)connect attempt.
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`

	// ReadTimeout bounds each read of a notifier reply when the request
	// context carries no deadline.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
}

// DirectoryConfig configures the authoritative directory client.
type DirectoryConfig struct {
	// Address is the LDAP URL (ldap:// or ldaps://) of the authoritative
	// directory.
	Address string `mapstructure:"address" validate:"required" yaml:"address"`

	// BindDN and BindPassword authenticate the listener's simple bind.
	// Ignored when Kerberos.Enabled is true.
	BindDN       string `mapstructure:"bind_dn" yaml:"bind_dn"`
	BindPassword string `mapstructure:"bind_password" yaml:"bind_password,omitempty"`

	// BaseDN scopes both entry reads and change-log lookups
	// (`reqSession=<id>,cn=translog` is resolved relative to it).
	BaseDN string `mapstructure:"base_dn" validate:"required" yaml:"base_dn"`

	// Retries bounds reconnect attempts.
	Retries int `mapstructure:"retries" validate:"gte=0" yaml:"retries"`

	// DialTimeout bounds the TCP dial for a (re)connect attempt.
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`

	// ReadTimeout bounds a single directory read.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// Kerberos enables a SASL/GSSAPI bind instead of simple bind.
	Kerberos KerberosConfig `mapstructure:"kerberos" yaml:"kerberos"`
}

// KerberosConfig configures an optional Kerberos/GSSAPI bind to the
// directory, used where the deployment's directory requires it instead of
// a simple bind.
type KerberosConfig struct {
	Enabled          bool   `mapstructure:"enabled" yaml:"enabled"`
	KeytabPath       string `mapstructure:"keytab_path" yaml:"keytab_path"`
	ServicePrincipal string `mapstructure:"service_principal" yaml:"service_principal"`
	Krb5Conf         string `mapstructure:"krb5_conf" yaml:"krb5_conf"`
	Realm            string `mapstructure:"realm" yaml:"realm"`
}

// TxlogConfig configures the optional transaction file.
type TxlogConfig struct {
	// Enabled corresponds to the write_transaction_file setting.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// HandlerConfig configures the handler runtime.
type HandlerConfig struct {
	// ModuleDirs is the ordered list of directories scanned for handler
	// modules at load time and on SIGHUP.
	ModuleDirs []string `mapstructure:"module_dirs" yaml:"module_dirs"`

	// PostrunIdleSec is validated and defaulted (300) but is not read by
	// `dirlistener start`: `postrun` fires for every loaded handler when
	// the dispatcher's idle threshold, taken from Notifier.AliveIdleSec,
	// elapses.
	PostrunIdleSec int `mapstructure:"postrun_idle_sec" validate:"gte=0" yaml:"postrun_idle_sec"`

	// NotifyOnFilterLoss resolves Open Question #1: whether a
	// handler that loses filter-match on a DN it was previously present
	// on should receive an on_removed(dn) call. Default false preserves
	// silent removal.
	NotifyOnFilterLoss bool `mapstructure:"notify_on_filter_loss" yaml:"notify_on_filter_loss"`

	// DropPrivilegesTo is the unprivileged user identity the runtime
	// re-assumes after every hook invocation when the process started
	// elevated.
	DropPrivilegesTo string `mapstructure:"drop_privileges_to" yaml:"drop_privileges_to,omitempty"`
}

// SupervisorConfig configures the free-space watchdog and quarantine
// sentinel.
type SupervisorConfig struct {
	// MinFreeMiB is the free-space threshold per monitored filesystem; 0
	// disables the watchdog.
	MinFreeMiB int `mapstructure:"min_free_mib" validate:"gte=0" yaml:"min_free_mib"`
}

// APIConfig configures the bearer-authenticated admin/health HTTP
// surface.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// AdminConfig contains the bootstrap admin bearer secret, set by
// `dirlistener init` and verified (as a bcrypt hash) by pkg/api/auth.
type AdminConfig struct {
	SecretHash string `mapstructure:"secret_hash" yaml:"secret_hash,omitempty"`

	// JWTSecret is the HMAC signing key for admin bearer tokens
	// (pkg/api/auth.JWTConfig.Secret), generated once by `dirlistener
	// init` and persisted alongside SecretHash. It is not the operator's
	// login secret; losing it only invalidates already-issued tokens.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages, pointing the
// operator at `dirlistener init` when no config file exists yet.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dirlistener init\n\n"+
				"Or specify a custom config file:\n"+
				"  dirlistener <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dirlistener init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// Validate runs struct-tag validation over cfg using go-playground/validator
// and its `validate:"..."` struct tags.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: config may hold a bind password or admin secret hash.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DIRLISTENER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dirlistener")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dirlistener")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
