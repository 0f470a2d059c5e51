package onvif

import (
	"net"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by LoadConfig
const EnvPrefix = "ONVIF_"

// ConfigPathEnvVar names an optional YAML config file
const ConfigPathEnvVar = EnvPrefix + "CONFIG"

// Config is the read-only configuration shared by every device unit
type Config struct {
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	ListenAddr  string `koanf:"listen_addr"`
	ServicePath string `koanf:"service_path"`
	Codec       string `koanf:"codec"`

	MaxConcurrentDevices int           `koanf:"max_concurrent_devices"`
	ProfileConcurrency   int           `koanf:"profile_concurrency"`
	DiscoveryTimeout     time.Duration `koanf:"discovery_timeout"`
	RequestTimeout       time.Duration `koanf:"request_timeout"`
	InsecureTLS          bool          `koanf:"insecure_tls"`

	LogLevel    string `koanf:"log_level"`
	LogFormat   string `koanf:"log_format"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// DefaultConfig returns a Config with all defaults applied
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:           DefaultListenAddr,
		ServicePath:          DefaultServicePath,
		Codec:                DefaultCodec,
		MaxConcurrentDevices: DefaultMaxConcurrentDevices,
		ProfileConcurrency:   DefaultProfileConcurrency,
		DiscoveryTimeout:     DefaultDiscoveryTimeout,
		RequestTimeout:       DefaultRequestTimeout,
		LogLevel:             "info",
		LogFormat:            "console",
	}
}

// LoadConfig layers defaults, an optional YAML file, ONVIF_* environment
// variables and finally overrides (usually the flags set on the command line).
// An empty path falls back to $ONVIF_CONFIG.
func LoadConfig(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, errors.Annotate(err, "loading defaults")
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Annotatef(err, "loading config file %s", path)
		}
	}

	// ONVIF_LISTEN_ADDR -> listen_addr
	envProvider := env.Provider(EnvPrefix, ".", func(key string) string {
		return strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, errors.Annotate(err, "loading environment")
	}

	for key, val := range overrides {
		if err := k.Set(key, val); err != nil {
			return nil, errors.Annotatef(err, "setting %s", key)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Annotate(err, "unmarshalling config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

// Validate checks the setup errors that must stop the program before any
// device is processed
func (cfg *Config) Validate() error {
	if _, err := cfg.Credentials(); err != nil {
		return errors.Trace(err)
	}
	if _, err := cfg.ListenIP(); err != nil {
		return errors.Trace(err)
	}
	if cfg.ServicePath == "" {
		return errors.NotValidf("service path %q", cfg.ServicePath)
	}
	if cfg.Codec == "" {
		return errors.NotValidf("codec %q", cfg.Codec)
	}
	if cfg.MaxConcurrentDevices < 1 {
		return errors.NotValidf("max concurrent devices %d", cfg.MaxConcurrentDevices)
	}
	if cfg.ProfileConcurrency < 1 {
		return errors.NotValidf("profile concurrency %d", cfg.ProfileConcurrency)
	}
	return nil
}

// Credentials returns nil when neither username nor password is set. Setting
// only one of them is an error.
func (cfg *Config) Credentials() (*Credentials, error) {
	switch {
	case cfg.Username == "" && cfg.Password == "":
		return nil, nil
	case cfg.Username == "" || cfg.Password == "":
		return nil, errors.NewNotValid(nil, "username and password must be specified together")
	default:
		return &Credentials{Username: cfg.Username, Password: cfg.Password}, nil
	}
}

// ListenIP parses the listen address
func (cfg *Config) ListenIP() (net.IP, error) {
	ip := net.ParseIP(cfg.ListenAddr)
	if ip == nil {
		return nil, errors.NotValidf("listen address %q", cfg.ListenAddr)
	}
	return ip, nil
}
