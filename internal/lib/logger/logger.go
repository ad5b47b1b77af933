package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/linemk/order-portal/internal/lib/logger/handlers/slogpretty"
)

// switching logger
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// ServiceName попадает в каждую JSON-запись, чтобы отделять логи портала в общем сборщике
const ServiceName = "order-portal"

// SetupLogger инициализирует логгер в зависимости от окружения.
// local - цветной вывод (pretty), dev/prod - JSON с полями service и env.
// Непустой level ("debug", "info", "warn", "error") перекрывает уровень окружения.
func SetupLogger(env, level string) *slog.Logger {
	return newLogger(os.Stdout, env, level)
}

func newLogger(out io.Writer, env, level string) *slog.Logger {
	env = normalizeEnv(env)
	lvl, levelErr := resolveLevel(env, level)

	var log *slog.Logger
	if env == EnvLocal {
		log = setupPrettySlog(out, lvl)
	} else {
		log = slog.New(
			slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl}),
		).With(slog.String("service", ServiceName), slog.String("env", env))
	}

	if levelErr != nil {
		log.Warn("unknown log level, using environment default",
			slog.String("configured", level),
			slog.String("default", lvl.String()),
		)
	}
	return log
}

// normalizeEnv неизвестное окружение логируется как prod
func normalizeEnv(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case EnvLocal:
		return EnvLocal
	case EnvDev, "development":
		return EnvDev
	}
	return EnvProd
}

func resolveLevel(env, level string) (slog.Level, error) {
	lvl := slog.LevelInfo
	if env != EnvProd {
		lvl = slog.LevelDebug
	}
	if strings.TrimSpace(level) == "" {
		return lvl, nil
	}

	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return lvl, err
	}
	return parsed, nil
}

func setupPrettySlog(out io.Writer, level slog.Level) *slog.Logger {
	color.NoColor = false

	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: level,
		},
	}

	handler := opts.NewPrettyHandler(out)
	return slog.New(handler)
}
