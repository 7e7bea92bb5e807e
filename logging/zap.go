package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLoggerProvider 把日志转发给 zap.Logger
type ZapLoggerProvider struct {
	logger *zap.Logger
	level  zap.AtomicLevel
}

// NewZapLoggerProvider 基于已有的 zap.Logger 创建提供者。
// 最小级别在 zap 自身的级别之上再做一次过滤。
func NewZapLoggerProvider(logger *zap.Logger) *ZapLoggerProvider {
	return &ZapLoggerProvider{
		logger: logger,
		level:  zap.NewAtomicLevelAt(zapcore.InfoLevel),
	}
}

func (p *ZapLoggerProvider) CreateLogger(category string) Logger {
	return &zapLogger{logger: p.logger.Named(category), level: p.level, base: p.logger}
}

func (p *ZapLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.level.SetLevel(zapLevel(level))
}

// Sync 刷新 zap 缓冲
func (p *ZapLoggerProvider) Sync() error {
	return p.logger.Sync()
}

// AddZap 添加 zap 日志
func (b *LoggingBuilder) AddZap(logger *zap.Logger) *LoggingBuilder {
	return b.AddProvider(NewZapLoggerProvider(logger))
}

type zapLogger struct {
	logger *zap.Logger
	base   *zap.Logger
	level  zap.AtomicLevel
}

func (l *zapLogger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *zapLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.Log(LogLevelInfo, msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.Log(LogLevelWarn, msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }

func (l *zapLogger) Fatal(msg string, fields ...Field) {
	l.Log(LogLevelFatal, msg, fields...)
	os.Exit(1)
}

func (l *zapLogger) Log(level LogLevel, msg string, fields ...Field) {
	lvl := zapLevel(level)
	if !l.level.Enabled(lvl) {
		return
	}
	// Fatal 交给 Logger.Fatal 处理退出，这里按 Error 写出
	if lvl == zapcore.FatalLevel {
		lvl = zapcore.ErrorLevel
	}
	if ce := l.logger.Check(lvl, msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

func (l *zapLogger) WithFields(fields ...Field) Logger {
	return &zapLogger{logger: l.logger.With(zapFields(fields)...), base: l.base, level: l.level}
}

func (l *zapLogger) WithCategory(category string) Logger {
	return &zapLogger{logger: l.base.Named(category), base: l.base, level: l.level}
}

func zapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelTrace, LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}
