package bootstrap

import (
	"fmt"
	"os"

	"evtriage/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger builds a colored console logger on stderr at the given level.
// Stdout is reserved for reports.
func InitLogger(level string) (*zap.Logger, *zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		lvl,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads the configuration from configFile, or from evtriage.yaml
// and the environment when configFile is empty.
func InitConfig(configFile string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// logConfig records the settings a run will use.
func logConfig(sugar *zap.SugaredLogger, cfg *config.Config, configFile string) {
	if configFile == "" {
		sugar.Debug("No config file given, using evtriage.yaml if present plus env vars")
	}
	sugar.Infow("Config loaded",
		"workers", cfg.Engine.WorkerCount,
		"chunk_size", cfg.Engine.ChunkSize,
		"preserve_order", cfg.Engine.PreserveOrder,
		"detection_file", cfg.Patterns.DetectionFile,
		"whitelist_file", cfg.Patterns.WhitelistFile)
	sugar.Debugw("Output configuration",
		"findings_db", cfg.Output.FindingsDB,
		"export_file", cfg.Output.ExportFile,
		"metrics_file", cfg.Output.MetricsFile)
}
