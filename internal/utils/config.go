package utils

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/benmeehan/ak-mqtt/internal/constants"
	"github.com/benmeehan/ak-mqtt/pkg/file"
)

var (
	// ErrConfig is returned for any missing or invalid configuration value.
	ErrConfig = errors.New("invalid configuration")

	// ErrHelpRequested is returned when --help was given.
	ErrHelpRequested = errors.New("help requested")

	// ErrVersionRequested is returned when --version was given.
	ErrVersionRequested = errors.New("version requested")
)

const programName = "ak-mqtt"

// Backoff policy names accepted in configuration.
const (
	BackoffConstant    = "constant"
	BackoffExponential = "exponential"
)

// Config represents the structure of the configuration file and command line.
type Config struct {
	MQTT struct {
		Hostname      string `yaml:"hostname"`       // MQTT broker hostname
		Port          int    `yaml:"port"`           // MQTT broker TLS port
		Username      string `yaml:"username"`       // Reserved for uplink secret authentication
		Password      string `yaml:"password"`       // Reserved for uplink secret authentication
		CACertificate string `yaml:"ca_certificate"` // Optional CA bundle; system roots when empty
		Backoff       string `yaml:"backoff"`        // Connect retry policy: constant or exponential
	} `yaml:"mqtt"`

	Identity struct {
		DeviceID       string `yaml:"device_id"`        // Physical device id, also client id and username
		Algorithm      string `yaml:"algorithm"`        // Token signing algorithm (ES256 or RS256)
		Audience       string `yaml:"audience"`         // Audience root, e.g. akenza.io
		PrivateKeyFile string `yaml:"private_key_file"` // Path to the device private key
	} `yaml:"identity"`

	Telemetry struct {
		Sampler string `yaml:"sampler"` // Sample source: random or host
	} `yaml:"telemetry"`

	Metrics struct {
		Address string `yaml:"address"` // Listen address for /metrics, disabled when empty
	} `yaml:"metrics"`

	Verbose bool `yaml:"verbose"` // Enable debug logging
}

// DefaultConfig returns the configuration used when neither file nor flags set a value.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.MQTT.Hostname = constants.DefaultHostname
	cfg.MQTT.Port = constants.DefaultPort
	cfg.MQTT.Backoff = BackoffConstant
	cfg.Identity.Algorithm = constants.DefaultAlgorithm
	cfg.Identity.Audience = constants.DefaultAudience
	cfg.Telemetry.Sampler = constants.SamplerRandom
	return cfg
}

// BrokerAddress returns the transport address of the configured broker.
func (c *Config) BrokerAddress() string {
	return constants.BrokerAddress(c.MQTT.Hostname, c.MQTT.Port)
}

// LoadConfig builds the configuration from an optional YAML file named by --config,
// overridden by command line flags, and validates the result.
func LoadConfig(args []string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()

	configPath, err := findConfigPath(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if configPath != "" {
		if err := fileClient.ReadYamlFile(configPath, config); err != nil {
			return nil, fmt.Errorf("%w: failed to load %s: %w", ErrConfig, configPath, err)
		}
	}

	flagSet, opts := newFlagSet(config)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, ErrHelpRequested
		}
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if opts.help {
		return nil, ErrHelpRequested
	}
	if opts.version {
		return nil, ErrVersionRequested
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks required values and value ranges.
func (c *Config) Validate() error {
	if c.Identity.DeviceID == "" {
		return fmt.Errorf("%w: the --device_id argument is required", ErrConfig)
	}
	if c.Identity.PrivateKeyFile == "" {
		return fmt.Errorf("%w: the --private_key_file argument is required", ErrConfig)
	}
	if c.MQTT.Hostname == "" {
		return fmt.Errorf("%w: the --mqtt_hostname argument must not be empty", ErrConfig)
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("%w: mqtt port %d is out of range", ErrConfig, c.MQTT.Port)
	}
	if c.Identity.Audience == "" {
		return fmt.Errorf("%w: the --audience argument must not be empty", ErrConfig)
	}

	samplers := SliceToSet([]string{constants.SamplerRandom, constants.SamplerHost})
	if _, ok := samplers[c.Telemetry.Sampler]; !ok {
		return fmt.Errorf("%w: unknown sampler %q", ErrConfig, c.Telemetry.Sampler)
	}

	backoffs := SliceToSet([]string{BackoffConstant, BackoffExponential})
	if _, ok := backoffs[c.MQTT.Backoff]; !ok {
		return fmt.Errorf("%w: unknown backoff policy %q", ErrConfig, c.MQTT.Backoff)
	}

	return nil
}

// Usage returns the flag help text.
func Usage() string {
	flagSet, _ := newFlagSet(DefaultConfig())
	return fmt.Sprintf("Usage of %s:\n  An example CLI for connecting to the akenza MQTT broker.\n\n%s", programName, flagSet.FlagUsages())
}

type cliOptions struct {
	configPath string
	help       bool
	version    bool
}

// newFlagSet binds every flag to config; current config values become the defaults
// so flags only override what they explicitly set.
func newFlagSet(config *Config) (*pflag.FlagSet, *cliOptions) {
	opts := &cliOptions{}

	fs := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	fs.StringVarP(&config.MQTT.Hostname, "mqtt_hostname", "s", config.MQTT.Hostname, "MQTT hostname")
	fs.IntVarP(&config.MQTT.Port, "mqtt_port", "p", config.MQTT.Port, "MQTT port")
	fs.StringVarP(&config.Identity.DeviceID, "device_id", "d", config.Identity.DeviceID, "The physical device id")
	fs.StringVarP(&config.MQTT.Username, "mqtt_username", "u", config.MQTT.Username, "MQTT username (only for uplink secret authentication)")
	fs.StringVarP(&config.MQTT.Password, "mqtt_password", "r", config.MQTT.Password, "MQTT password (only for uplink secret authentication)")
	fs.StringVarP(&config.Identity.Algorithm, "algorithm", "a", config.Identity.Algorithm, "Signing algorithm (ES256 or RS256)")
	fs.StringVarP(&config.Identity.Audience, "audience", "c", config.Identity.Audience, "Audience (e.g. akenza.io)")
	fs.StringVarP(&config.Identity.PrivateKeyFile, "private_key_file", "f", config.Identity.PrivateKeyFile, "Path to the private key")
	fs.StringVar(&config.MQTT.CACertificate, "ca_file", config.MQTT.CACertificate, "Path to a CA bundle used to verify the broker (default: system roots)")
	fs.StringVar(&config.MQTT.Backoff, "backoff", config.MQTT.Backoff, "Connect retry policy (constant or exponential)")
	fs.StringVar(&config.Telemetry.Sampler, "sampler", config.Telemetry.Sampler, "Sample source (random or host)")
	fs.StringVar(&config.Metrics.Address, "metrics_addr", config.Metrics.Address, "Serve Prometheus metrics on this address (disabled when empty)")
	fs.StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	fs.BoolVarP(&config.Verbose, "verbose", "v", config.Verbose, "Enable verbose output")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")
	fs.BoolVarP(&opts.help, "help", "h", false, "Print usage")

	return fs, opts
}

// findConfigPath extracts --config ahead of full parsing so file values can act as defaults.
func findConfigPath(args []string) (string, error) {
	var configPath string

	fs := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	fs.StringVar(&configPath, "config", "", "")
	fs.BoolP("help", "h", false, "")

	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return configPath, nil
}
