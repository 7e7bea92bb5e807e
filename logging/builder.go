package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Options 可从配置绑定的日志选项。
//
//	logging:
//	  level: debug
//	  console: true
//	  color: false
//	  file: logs/app.log
//	  json: true
type Options struct {
	Level   string `json:"level" yaml:"level"`
	Console bool   `json:"console" yaml:"console"`
	Color   bool   `json:"color" yaml:"color"`
	File    string `json:"file" yaml:"file"`
	Json    bool   `json:"json" yaml:"json"`
}

// ParseLevel 解析日志级别名称，大小写不敏感
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LogLevelTrace, nil
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "fatal":
		return LogLevelFatal, nil
	}
	return LogLevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// LoggingBuilder 日志构建器，按添加顺序组合多个提供者
type LoggingBuilder struct {
	mu           sync.Mutex
	providers    []LoggerProvider
	minimumLevel LogLevel
	err          error
}

// NewLoggingBuilder 创建日志构建器，默认级别 Info
func NewLoggingBuilder() *LoggingBuilder {
	return &LoggingBuilder{minimumLevel: LogLevelInfo}
}

// SetMinimumLevel 设置最小日志级别，对已添加和之后添加的提供者都生效
func (b *LoggingBuilder) SetMinimumLevel(level LogLevel) *LoggingBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.minimumLevel = level
	for _, p := range b.providers {
		p.SetMinimumLevel(level)
	}
	return b
}

// AddProvider 添加日志提供者
func (b *LoggingBuilder) AddProvider(provider LoggerProvider) *LoggingBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	provider.SetMinimumLevel(b.minimumLevel)
	b.providers = append(b.providers, provider)
	return b
}

// AddConsole 添加控制台日志
func (b *LoggingBuilder) AddConsole(options ...ConsoleLoggerOptions) *LoggingBuilder {
	opts := ConsoleLoggerOptions{
		IncludeTimestamp: true,
		TimestampFormat:  "2006-01-02 15:04:05",
		ColorOutput:      true,
		Output:           os.Stdout,
	}
	if len(options) > 0 {
		opts = options[0]
	}
	return b.AddProvider(NewConsoleLoggerProvider(opts))
}

// AddFile 添加文件日志
func (b *LoggingBuilder) AddFile(path string, options ...FileLoggerOptions) *LoggingBuilder {
	opts := FileLoggerOptions{BufferSize: 1024}
	if len(options) > 0 {
		opts = options[0]
	}
	opts.Path = path
	return b.AddProvider(NewFileLoggerProvider(opts))
}

// Configure 按 Options 设置级别并添加控制台、文件提供者。
// 级别无法解析时记录错误，Build 时返回。
func (b *LoggingBuilder) Configure(opts Options) *LoggingBuilder {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
	}
	b.SetMinimumLevel(level)

	if opts.Console {
		b.AddConsole(ConsoleLoggerOptions{
			IncludeTimestamp: true,
			TimestampFormat:  "2006-01-02 15:04:05",
			ColorOutput:      opts.Color,
			Output:           os.Stdout,
		})
	}
	if opts.File != "" {
		b.AddFile(opts.File, FileLoggerOptions{BufferSize: 1024, Json: opts.Json})
	}
	return b
}

// Build 构建日志工厂
func (b *LoggingBuilder) Build() LoggerFactory {
	factory, _ := b.TryBuild()
	return factory
}

// TryBuild 与 Build 相同，但返回 Configure 记录的错误
func (b *LoggingBuilder) TryBuild() (LoggerFactory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	factory := &loggerFactory{minimumLevel: b.minimumLevel}
	for _, provider := range b.providers {
		factory.AddProvider(provider)
	}
	return factory, b.err
}
