// Package logging builds secsync's zap logger, splitting between JSON
// production output and a human-readable console encoder.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger. jsonOutput selects structured JSON
// (suited to log aggregation) over console-friendly output.
func New(jsonOutput bool) (*zap.SugaredLogger, error) {
	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		logger, err := cfg.Build()
		if err != nil {
			return nil, err
		}
		return logger.Sugar(), nil
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger := zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(os.Stdout),
		zap.DebugLevel,
	))
	return logger.Sugar(), nil
}
