package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mazira-designs/api/internal/platform/requestctx"
)

const (
	defaultLogLevel    = "info"
	defaultServiceName = "mazira-api"
)

// NewLogger builds a JSON logger whose keys match Cloud Logging's structured payload.
// LOG_LEVEL selects the level; K_SERVICE and K_REVISION are attached when running on Cloud Run.
func NewLogger() (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))))); err != nil {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}

	encoderCfg := zapcore.EncoderConfig{
		MessageKey:    "message",
		TimeKey:       "timestamp",
		LevelKey:      "severity",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
		EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:   severityEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}

	service := strings.TrimSpace(os.Getenv("K_SERVICE"))
	if service == "" {
		service = defaultServiceName
	}
	fields := map[string]any{"service": service}
	if revision := strings.TrimSpace(os.Getenv("K_REVISION")); revision != "" {
		fields["revision"] = revision
	}

	cfg := zap.Config{
		Level:             level,
		Encoding:          "json",
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
		InitialFields:     fields,
	}
	return cfg.Build()
}

// severityEncoder maps zap levels onto Cloud Logging severities.
func severityEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DPanicLevel, zapcore.PanicLevel:
		enc.AppendString("CRITICAL")
	case zapcore.FatalLevel:
		enc.AppendString("EMERGENCY")
	case zapcore.WarnLevel:
		enc.AppendString("WARNING")
	default:
		enc.AppendString(strings.ToUpper(level.String()))
	}
}

// WithLogger injects the logger into ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// PrintfAdapter adapts zap to printf-style logging interfaces.
type PrintfAdapter struct {
	logger *zap.SugaredLogger
}

// NewPrintfAdapter creates a PrintfAdapter backed by logger.
func NewPrintfAdapter(logger *zap.Logger) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{logger: logger.Sugar()}
}

// Printf logs at warn level; the idempotency middleware only reports store failures through it.
func (a PrintfAdapter) Printf(format string, args ...any) {
	a.logger.Warnf(format, args...)
}
