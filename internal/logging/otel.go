package logging

import (
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const otelScope = "github.com/fyrsmithlabs/expmem"

// newOTELCore bridges zap entries at or above the configured level to an
// OpenTelemetry log provider. Fields named in the redaction config are
// masked before they leave the process.
func newOTELCore(cfg *Config, provider log.LoggerProvider) zapcore.Core {
	keys := map[string]bool{}
	if cfg.Redaction.Enabled {
		for _, f := range cfg.Redaction.Fields {
			keys[strings.ToLower(f)] = true
		}
	}
	return &bridgeCore{
		Core:  otelzap.NewCore(otelScope, otelzap.WithLoggerProvider(provider)),
		level: cfg.Level,
		keys:  keys,
	}
}

type bridgeCore struct {
	zapcore.Core
	level zapcore.LevelEnabler
	keys  map[string]bool
}

func (c *bridgeCore) Enabled(lvl zapcore.Level) bool {
	return c.level.Enabled(lvl) && c.Core.Enabled(lvl)
}

func (c *bridgeCore) With(fields []zapcore.Field) zapcore.Core {
	return &bridgeCore{Core: c.Core.With(c.redact(fields)), level: c.level, keys: c.keys}
}

func (c *bridgeCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *bridgeCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, c.redact(fields))
}

func (c *bridgeCore) redact(fields []zapcore.Field) []zapcore.Field {
	if len(c.keys) == 0 {
		return fields
	}
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		if c.keys[strings.ToLower(f.Key)] {
			f = zap.String(f.Key, "[REDACTED]")
		}
		out[i] = f
	}
	return out
}
