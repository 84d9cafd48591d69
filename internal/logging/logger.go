// Package logging provides categorized structured logging for flowtitan.
// Each subsystem gets its own named logger backed by a shared zap core;
// categories let operators filter `journalctl`/log-aggregator queries by
// subsystem without grepping message text.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Category identifies the subsystem a log line originates from.
type Category string

const (
	CategoryCore        Category = "core"
	CategoryDSL         Category = "dsl"
	CategoryExec        Category = "exec"
	CategoryAutonomy    Category = "autonomy"
	CategorySkills      Category = "skills"
	CategoryCognition   Category = "cognition"
	CategoryPolicy      Category = "policy"
	CategorySession     Category = "session"
	CategoryReliability Category = "reliability"
)

var allCategories = []Category{
	CategoryCore, CategoryDSL, CategoryExec, CategoryAutonomy, CategorySkills,
	CategoryCognition, CategoryPolicy, CategorySession, CategoryReliability,
}

// Logger wraps a zap.SugaredLogger scoped to a single category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	base      *zap.Logger
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	initOnce  sync.Once
)

// Initialize builds the shared zap core at the given level ("debug", "info",
// "warn", "error") and primes a Logger for every known category. Safe to call
// more than once; only the first call takes effect.
func Initialize(level string) error {
	var err error
	initOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.TimeKey = "ts"
		if lvl, lerr := zap.ParseAtomicLevel(level); lerr == nil {
			cfg.Level = lvl
		}
		var l *zap.Logger
		l, err = cfg.Build()
		if err != nil {
			return
		}
		base = l
		loggersMu.Lock()
		for _, c := range allCategories {
			loggers[c] = &Logger{category: c, sugar: base.Sugar().With("category", string(c))}
		}
		loggersMu.Unlock()
	})
	return err
}

// Get returns the Logger for category, lazily falling back to a noop zap
// core if Initialize was never called (useful in unit tests).
func Get(category Category) *Logger {
	loggersMu.RLock()
	l, ok := loggers[category]
	loggersMu.RUnlock()
	if ok {
		return l
	}
	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	if base == nil {
		base = zap.NewNop()
	}
	l = &Logger{category: category, sugar: base.Sugar().With("category", string(category))}
	loggers[category] = l
	return l
}

// Sync flushes every category logger. Call once at process shutdown.
func Sync() {
	loggersMu.RLock()
	defer loggersMu.RUnlock()
	for _, l := range loggers {
		_ = l.sugar.Sync()
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Error(fmt.Sprintf(format, args...))
}

// With returns a derived Logger carrying the given structured fields on
// every subsequent call, mirroring zap's With but keeping our printf-style
// level methods.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(kv...)}
}

// Package-level convenience wrappers, one pair per category, matching the
// call-site ergonomics used throughout the rest of the codebase.

func Core(format string, args ...interface{})      { Get(CategoryCore).Info(format, args...) }
func CoreDebug(format string, args ...interface{})  { Get(CategoryCore).Debug(format, args...) }
func DSL(format string, args ...interface{})        { Get(CategoryDSL).Info(format, args...) }
func DSLDebug(format string, args ...interface{})   { Get(CategoryDSL).Debug(format, args...) }
func Exec(format string, args ...interface{})       { Get(CategoryExec).Info(format, args...) }
func ExecDebug(format string, args ...interface{})  { Get(CategoryExec).Debug(format, args...) }
func Autonomy(format string, args ...interface{})   { Get(CategoryAutonomy).Info(format, args...) }
func AutonomyDebug(format string, args ...interface{}) {
	Get(CategoryAutonomy).Debug(format, args...)
}
func Skills(format string, args ...interface{})      { Get(CategorySkills).Info(format, args...) }
func SkillsDebug(format string, args ...interface{})  { Get(CategorySkills).Debug(format, args...) }
func Cognition(format string, args ...interface{})    { Get(CategoryCognition).Info(format, args...) }
func CognitionDebug(format string, args ...interface{}) {
	Get(CategoryCognition).Debug(format, args...)
}
func Policy(format string, args ...interface{})      { Get(CategoryPolicy).Info(format, args...) }
func PolicyDebug(format string, args ...interface{})  { Get(CategoryPolicy).Debug(format, args...) }
func Session(format string, args ...interface{})      { Get(CategorySession).Info(format, args...) }
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }
func Reliability(format string, args ...interface{})  { Get(CategoryReliability).Info(format, args...) }
func ReliabilityDebug(format string, args ...interface{}) {
	Get(CategoryReliability).Debug(format, args...)
}
