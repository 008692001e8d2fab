package logging

import (
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edvin/mailaliases/internal/config"
)

const serviceName = "mail-aliases"

// NewLogger creates a structured zerolog.Logger writing to w. Every line
// carries the service name and a run id unique to this invocation; the API
// host is added when configured.
func NewLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(w).With().
		Timestamp().
		Str("service", serviceName).
		Str("run_id", uuid.New().String())

	if cfg.Host != "" {
		ctx = ctx.Str("api_host", cfg.Host)
	}
	if cfg.User != "" {
		ctx = ctx.Str("api_user", cfg.User)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.WarnLevel
	}

	return logger.Level(level)
}
