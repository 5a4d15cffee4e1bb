// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 配置全局 zerolog，所有日志都带上 service 字段
func Init(serviceName, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	zlog.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()
	zerolog.DefaultContextLogger = &zlog.Logger
}

// Ctx 返回 context 中的 logger；若当前有活跃的 span，则附加 trace_id
func Ctx(ctx context.Context) *zerolog.Logger {
	l := base(ctx)
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return l
	}
	enriched := l.With().Str("trace_id", sc.TraceID().String()).Logger()
	return &enriched
}

// WithContext 把一个带有额外字段的 logger 存入 context
func WithContext(ctx context.Context, fields map[string]string) context.Context {
	lc := base(ctx).With()
	for k, v := range fields {
		lc = lc.Str(k, v)
	}
	l := lc.Logger()
	return l.WithContext(ctx)
}

func base(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return &zlog.Logger
	}
	return l
}
