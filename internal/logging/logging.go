// Package logging wraps zap with the console style the rest of this
// codebase's ancestry uses: short, emoji-prefixed messages with structured
// fields instead of fmt.Sprintf-baked strings.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide logger. env selects the encoder: "development"
// gets a human console encoder, anything else gets JSON for log shipping.
func New(env string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if env == "development" || env == "" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Fall back rather than crash the process over a logger.
		logger = zap.NewNop()
	}
	return logger
}

// Field shorthands kept local so call sites read the same way the reference
// handlers format their log lines (sessionId=..., connectionId=...).
func SessionID(id string) zap.Field    { return zap.String("sessionId", id) }
func ConnectionID(id string) zap.Field { return zap.String("connectionId", id) }
func Language(code string) zap.Field   { return zap.String("language", code) }
func Correlation(id string) zap.Field  { return zap.String("correlationId", id) }
