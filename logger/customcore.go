package logger

import (
	"go.uber.org/zap/zapcore"
)

// leadingKeys are moved to the front of every entry so that request correlation is the
// first thing visible when scanning log output.
var leadingKeys = []string{"correlation_id", "transaction_id"}

type customCore struct {
	zapcore.Core
}

// With adds structured context to the Core.
func (c *customCore) With(fields []zapcore.Field) zapcore.Core {
	return &customCore{c.Core.With(fields)}
}

// Write reorders fields so that correlation fields lead, then hands off to the wrapped core.
func (c *customCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(entry, reorderFields(fields))
}

// Check determines whether the supplied Entry should be logged. The entry is registered
// against this core, not the wrapped one, so that Write goes through the reordering.
func (c *customCore) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checkedEntry.AddCore(entry, c)
	}
	return checkedEntry
}

// Sync flushes buffered logs (if any).
func (c *customCore) Sync() error {
	return c.Core.Sync()
}

func reorderFields(fields []zapcore.Field) []zapcore.Field {
	leading := make([]zapcore.Field, 0, len(leadingKeys))
	rest := make([]zapcore.Field, 0, len(fields))
	for _, key := range leadingKeys {
		for _, field := range fields {
			if field.Key == key {
				leading = append(leading, field)
			}
		}
	}
	for _, field := range fields {
		if !isLeadingKey(field.Key) {
			rest = append(rest, field)
		}
	}
	return append(leading, rest...)
}

func isLeadingKey(key string) bool {
	for _, k := range leadingKeys {
		if k == key {
			return true
		}
	}
	return false
}
