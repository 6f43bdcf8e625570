// Package logging builds the process logger and keeps a ring buffer of
// recent entries for the diagnostics endpoint.
package logging

import (
	"container/ring"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultBufferSize is the number of entries kept in memory.
	DefaultBufferSize = 1000
	// MaxBufferSize caps the configured buffer size.
	MaxBufferSize = 10000
)

// Config selects the level and encoding of the process logger.
type Config struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"` // "json" or "console"
	BufferSize int    `yaml:"buffer_size" json:"buffer_size"`
}

// LogEntry is one buffered log record.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// New builds a logger that writes to stderr and to the returned buffer.
func New(cfg Config) (*zap.Logger, *Buffer, error) {
	level := zap.NewAtomicLevel()
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, nil, fmt.Errorf("invalid log format %q: want json or console", cfg.Format)
	}

	buffer := NewBuffer(cfg.BufferSize, level)
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
		buffer,
	)
	return zap.New(core, zap.AddCaller()), buffer, nil
}

// Buffer is a zapcore.Core that retains the most recent entries.
type Buffer struct {
	level zapcore.LevelEnabler
	state *bufferState
	// fields added through With, already encoded
	fields map[string]any
}

type bufferState struct {
	mu   sync.RWMutex
	ring *ring.Ring
}

// NewBuffer creates a buffer holding up to size entries at or above level.
func NewBuffer(size int, level zapcore.LevelEnabler) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if size > MaxBufferSize {
		size = MaxBufferSize
	}
	if level == nil {
		level = zapcore.DebugLevel
	}
	return &Buffer{level: level, state: &bufferState{ring: ring.New(size)}}
}

// Enabled implements zapcore.Core.
func (b *Buffer) Enabled(l zapcore.Level) bool {
	return b.level.Enabled(l)
}

// With implements zapcore.Core.
func (b *Buffer) With(fields []zapcore.Field) zapcore.Core {
	merged := make(map[string]any, len(b.fields)+len(fields))
	for k, v := range b.fields {
		merged[k] = v
	}
	for k, v := range encodeFields(fields) {
		merged[k] = v
	}
	return &Buffer{level: b.level, state: b.state, fields: merged}
}

// Check implements zapcore.Core.
func (b *Buffer) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if b.Enabled(e.Level) {
		return ce.AddCore(e, b)
	}
	return ce
}

// Write implements zapcore.Core.
func (b *Buffer) Write(e zapcore.Entry, fields []zapcore.Field) error {
	entry := LogEntry{
		Timestamp: e.Time,
		Level:     e.Level.String(),
		Source:    e.LoggerName,
		Message:   e.Message,
	}
	if len(b.fields)+len(fields) > 0 {
		entry.Fields = make(map[string]any, len(b.fields)+len(fields))
		for k, v := range b.fields {
			entry.Fields[k] = v
		}
		for k, v := range encodeFields(fields) {
			entry.Fields[k] = v
		}
	}

	s := b.state
	s.mu.Lock()
	s.ring.Value = entry
	s.ring = s.ring.Next()
	s.mu.Unlock()
	return nil
}

// Sync implements zapcore.Core.
func (b *Buffer) Sync() error {
	return nil
}

// Filter narrows Recent.
type Filter struct {
	Limit  int
	Level  string
	Source string
	Since  time.Time
}

// Recent returns buffered entries matching f, newest first. Level matches
// that level and above.
func (b *Buffer) Recent(f Filter) []LogEntry {
	limit := f.Limit
	if limit <= 0 || limit > MaxBufferSize {
		limit = 100
	}
	var minLevel zapcore.Level
	hasLevel := false
	if f.Level != "" {
		if err := minLevel.UnmarshalText([]byte(f.Level)); err == nil {
			hasLevel = true
		}
	}

	s := b.state
	s.mu.RLock()
	var all []LogEntry
	s.ring.Do(func(v any) {
		if entry, ok := v.(LogEntry); ok {
			all = append(all, entry)
		}
	})
	s.mu.RUnlock()

	out := make([]LogEntry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		entry := all[i]
		if hasLevel {
			var lvl zapcore.Level
			if lvl.UnmarshalText([]byte(entry.Level)) == nil && lvl < minLevel {
				continue
			}
		}
		if f.Source != "" && !strings.HasPrefix(entry.Source, f.Source) {
			continue
		}
		if !f.Since.IsZero() && entry.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func encodeFields(fields []zapcore.Field) map[string]any {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	return enc.Fields
}

var _ zapcore.Core = (*Buffer)(nil)
