package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	ProductionMode  = "production"
	DevelopmentMode = "development"
)

// New builds the process logger. Production mode emits JSON with ISO8601
// timestamps, anything else a colored console encoder.
func New(mode string) (*zap.Logger, error) {
	var config zap.Config
	if mode == ProductionMode {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return config.Build()
}

// Must is New for process entry points.
func Must(mode string) *zap.Logger {
	l, err := New(mode)
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(l)
	return l
}

// Delivery returns the standard fields for a pipeline log line.
func Delivery(campaignID, contactID, templateID int64) []zap.Field {
	return []zap.Field{
		zap.Int64("campaign_id", campaignID),
		zap.Int64("contact_id", contactID),
		zap.Int64("template_id", templateID),
	}
}
