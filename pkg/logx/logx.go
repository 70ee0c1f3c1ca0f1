// Package logx provides agent-prefixed logging with env-controlled debug output.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

type Logger struct {
	agentID string
	logger  *log.Logger
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	Domains map[string]bool // nil = all domains
}

var (
	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex
)

func init() { //nolint:gochecknoinits // env var initialization
	initDebugFromEnv()
}

func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugEnv := os.Getenv("DEBUG")
	debugConfig.Enabled = debugEnv == "1" || strings.EqualFold(debugEnv, "true")

	// DEBUG_DOMAINS=retry,loop,hunter restricts debug output to those domains.
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			if d = strings.TrimSpace(d); d != "" {
				debugConfig.Domains[d] = true
			}
		}
	}
}

// SetDebug overrides the env-derived debug state. Used by tests and the CLI -debug flag.
func SetDebug(enabled bool) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugConfig.Enabled = enabled
}

func debugEnabled(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil || domain == "" {
		return debugConfig.Enabled
	}
	return debugConfig.Domains[domain]
}

// NewLogger creates a logger whose lines are prefixed with the agent id.
func NewLogger(agentID string) *Logger {
	return &Logger{
		agentID: agentID,
		logger:  log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *Logger) logf(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] %s: %s", l.agentID, level, msg)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.logf(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	l.logf(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.logf(LevelError, format, args...)
}

// Debug logs a debug message when DEBUG is enabled.
func (l *Logger) Debug(format string, args ...any) {
	if !debugEnabled("") {
		return
	}
	l.logf(LevelDebug, format, args...)
}

// DebugDomain logs a debug message gated on a specific domain
// (DEBUG_DOMAINS env var, comma separated).
func (l *Logger) DebugDomain(domain, format string, args ...any) {
	if !debugEnabled(domain) {
		return
	}
	l.logf(LevelDebug, "[%s] %s", domain, fmt.Sprintf(format, args...))
}
