package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// EVTRIAGE_ENGINE_WORKER_COUNT.
const EnvPrefix = "EVTRIAGE"

// EngineConfig controls the deserialization pipeline.
type EngineConfig struct {
	// WorkerCount is the deserialization pool size. Zero means one worker.
	WorkerCount      int  `mapstructure:"worker_count" validate:"gte=0,lte=4096"`
	ChunkSize        int  `mapstructure:"chunk_size" validate:"gte=1"`
	PreserveOrder    bool `mapstructure:"preserve_order"`
	RegexTimeoutMS   int  `mapstructure:"regex_timeout_ms" validate:"gte=1"`
	CommandCacheSize int  `mapstructure:"command_cache_size" validate:"gte=1"`
}

// PatternsConfig locates the user pattern files. IgnoreCase applies to
// detection patterns; whitelist entries match case-sensitively unless
// WhitelistIgnoreCase is set.
type PatternsConfig struct {
	DetectionFile       string `mapstructure:"detection_file"`
	WhitelistFile       string `mapstructure:"whitelist_file"`
	IgnoreCase          bool   `mapstructure:"ignore_case"`
	WhitelistIgnoreCase bool   `mapstructure:"whitelist_ignore_case"`
}

// DetectionConfig holds the thresholds used by the command analyzer and the
// per-channel detectors.
type DetectionConfig struct {
	MinCommandLength int     `mapstructure:"min_command_length" validate:"gte=1"`
	MinAlphaPercent  float64 `mapstructure:"min_alpha_percent" validate:"gte=0,lte=1"`
	MaxBinaryPercent float64 `mapstructure:"max_binary_percent" validate:"gte=0,lte=1"`
	MaxFailedLogons  int     `mapstructure:"max_failed_logons" validate:"gte=1"`
}

// OutputConfig controls where results go besides stdout. Empty paths disable
// the corresponding step.
type OutputConfig struct {
	CreditsFile string `mapstructure:"credits_file"`
	ExportFile  string `mapstructure:"export_file"`
	FindingsDB  string `mapstructure:"findings_db"`
	MetricsFile string `mapstructure:"metrics_file"`
	NoColor     bool   `mapstructure:"no_color"`
	Quiet       bool   `mapstructure:"quiet"`
}

// Config holds all configuration for evtriage.
type Config struct {
	Log struct {
		Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	} `mapstructure:"log"`

	Engine    EngineConfig    `mapstructure:"engine"`
	Patterns  PatternsConfig  `mapstructure:"patterns"`
	Detection DetectionConfig `mapstructure:"detection"`
	Output    OutputConfig    `mapstructure:"output"`
}

var exportExtensions = map[string]bool{".json": true, ".yaml": true, ".yml": true}

// ErrUnsupportedExport is returned for an export file with an unknown extension.
var ErrUnsupportedExport = errors.New("unsupported export format")

func setDefaults() {
	viper.SetDefault("log.level", "info")

	viper.SetDefault("engine.worker_count", 1)
	viper.SetDefault("engine.chunk_size", 100)
	viper.SetDefault("engine.preserve_order", true)
	viper.SetDefault("engine.regex_timeout_ms", 500)
	viper.SetDefault("engine.command_cache_size", 4096)

	viper.SetDefault("patterns.detection_file", "regexes.txt")
	viper.SetDefault("patterns.whitelist_file", "whitelist.txt")
	viper.SetDefault("patterns.ignore_case", true)
	viper.SetDefault("patterns.whitelist_ignore_case", false)

	viper.SetDefault("detection.min_command_length", 1000)
	viper.SetDefault("detection.min_alpha_percent", 0.65)
	viper.SetDefault("detection.max_binary_percent", 0.50)
	viper.SetDefault("detection.max_failed_logons", 5)

	viper.SetDefault("output.credits_file", "credits.txt")
	viper.SetDefault("output.export_file", "")
	viper.SetDefault("output.findings_db", "")
	viper.SetDefault("output.metrics_file", "")
	viper.SetDefault("output.no_color", false)
	viper.SetDefault("output.quiet", false)
}

func loadFromEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// LoadConfig loads configuration from defaults, an optional YAML file, the
// environment, and any flags bound to the global viper instance. When
// configFile is empty, evtriage.yaml is looked up in . and ./config and its
// absence is not an error.
func LoadConfig(configFile string) (*Config, error) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("evtriage")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Default returns the built-in defaults without consulting files or the environment.
func Default() *Config {
	var c Config
	c.Log.Level = "info"
	c.Engine = EngineConfig{
		WorkerCount:      1,
		ChunkSize:        100,
		PreserveOrder:    true,
		RegexTimeoutMS:   500,
		CommandCacheSize: 4096,
	}
	c.Patterns = PatternsConfig{
		DetectionFile: "regexes.txt",
		WhitelistFile: "whitelist.txt",
		IgnoreCase:    true,
	}
	c.Detection = DetectionConfig{
		MinCommandLength: 1000,
		MinAlphaPercent:  0.65,
		MaxBinaryPercent: 0.50,
		MaxFailedLogons:  5,
	}
	c.Output.CreditsFile = "credits.txt"
	return &c
}

// validateConfig runs the struct tag rules and the cross-field checks.
func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return err
	}

	if config.Output.ExportFile != "" {
		ext := strings.ToLower(filepath.Ext(config.Output.ExportFile))
		if !exportExtensions[ext] {
			return fmt.Errorf("%w: %q (use .json, .yaml or .yml)", ErrUnsupportedExport, config.Output.ExportFile)
		}
	}

	if config.Output.FindingsDB != "" && config.Output.FindingsDB == config.Output.ExportFile {
		return fmt.Errorf("findings database and export file must differ: %s", config.Output.FindingsDB)
	}

	return nil
}
