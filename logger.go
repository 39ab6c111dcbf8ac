package gourdianfanout

import (
	"fmt"
	"maps"
	"path/filepath"
	"runtime"
	"strings"
)

// callerField is the field key that carries the call site when
// Config.EnableCaller is set.
const callerField = "caller"

// log is the internal entry used by every convenience method. It must be
// called directly from them so the caller frame depth stays fixed.
func (p *Pipeline) log(level Level, message string, fields map[string]any) {
	if !p.Enabled(level) {
		if p != nil {
			p.suppressed.Add(1)
		}
		return
	}

	if p.current().cfg.EnableCaller {
		if caller := callerInfo(3); caller != "" {
			fields = maps.Clone(fields)
			if fields == nil {
				fields = make(map[string]any, 1)
			}
			fields[callerField] = caller
		}
	}
	p.Submit(level, message, fields)
}

// callerInfo returns file:line:function for the frame skip levels up.
func callerInfo(skip int) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	name := fn.Name()
	if lastSlash := strings.LastIndex(name, "/"); lastSlash >= 0 {
		name = name[lastSlash+1:]
	}
	return fmt.Sprintf("%s:%d:%s", filepath.Base(file), line, name)
}

// Debug logs a message at DEBUG level.
//
// Parameters:
//   - v: Values to log, will be converted to string using fmt.Sprint
//
// Example:
//
//	p.Debug("cache warmed")
//	p.Debug("User", userID, "logged in")
func (p *Pipeline) Debug(v ...any) {
	p.log(DEBUG, fmt.Sprint(v...), nil)
}

// Info logs a message at INFO level.
//
// Example:
//
//	p.Info("service started")
func (p *Pipeline) Info(v ...any) {
	p.log(INFO, fmt.Sprint(v...), nil)
}

// Warn logs a message at WARN level. It is written to the warning stream.
func (p *Pipeline) Warn(v ...any) {
	p.log(WARN, fmt.Sprint(v...), nil)
}

// Error logs a message at ERROR level.
func (p *Pipeline) Error(v ...any) {
	p.log(ERROR, fmt.Sprint(v...), nil)
}

// Fatal logs a message at FATAL level.
//
// Unlike most loggers, Fatal does not exit the process; the caller decides
// whether the condition is terminal.
func (p *Pipeline) Fatal(v ...any) {
	p.log(FATAL, fmt.Sprint(v...), nil)
}

// Debugf logs a formatted message at DEBUG level.
//
// Example:
//
//	p.Debugf("processing item %d of %d", i, total)
func (p *Pipeline) Debugf(format string, v ...any) {
	p.log(DEBUG, fmt.Sprintf(format, v...), nil)
}

// Infof logs a formatted message at INFO level.
func (p *Pipeline) Infof(format string, v ...any) {
	p.log(INFO, fmt.Sprintf(format, v...), nil)
}

// Warnf logs a formatted message at WARN level.
func (p *Pipeline) Warnf(format string, v ...any) {
	p.log(WARN, fmt.Sprintf(format, v...), nil)
}

// Errorf logs a formatted message at ERROR level.
//
// Example:
//
//	p.Errorf("failed to connect to %s: %v", addr, err)
func (p *Pipeline) Errorf(format string, v ...any) {
	p.log(ERROR, fmt.Sprintf(format, v...), nil)
}

// Fatalf logs a formatted message at FATAL level. It does not exit.
func (p *Pipeline) Fatalf(format string, v ...any) {
	p.log(FATAL, fmt.Sprintf(format, v...), nil)
}

// DebugWithFields logs a message with structured fields at DEBUG level.
//
// Example:
//
//	p.DebugWithFields(map[string]any{"user": "alice", "attempt": 2}, "login")
func (p *Pipeline) DebugWithFields(fields map[string]any, v ...any) {
	p.log(DEBUG, fmt.Sprint(v...), fields)
}

func (p *Pipeline) InfoWithFields(fields map[string]any, v ...any) {
	p.log(INFO, fmt.Sprint(v...), fields)
}

func (p *Pipeline) WarnWithFields(fields map[string]any, v ...any) {
	p.log(WARN, fmt.Sprint(v...), fields)
}

func (p *Pipeline) ErrorWithFields(fields map[string]any, v ...any) {
	p.log(ERROR, fmt.Sprint(v...), fields)
}

func (p *Pipeline) FatalWithFields(fields map[string]any, v ...any) {
	p.log(FATAL, fmt.Sprint(v...), fields)
}

// DebugfWithFields logs a formatted message with structured fields at DEBUG level.
func (p *Pipeline) DebugfWithFields(fields map[string]any, format string, v ...any) {
	p.log(DEBUG, fmt.Sprintf(format, v...), fields)
}

func (p *Pipeline) InfofWithFields(fields map[string]any, format string, v ...any) {
	p.log(INFO, fmt.Sprintf(format, v...), fields)
}

func (p *Pipeline) WarnfWithFields(fields map[string]any, format string, v ...any) {
	p.log(WARN, fmt.Sprintf(format, v...), fields)
}

func (p *Pipeline) ErrorfWithFields(fields map[string]any, format string, v ...any) {
	p.log(ERROR, fmt.Sprintf(format, v...), fields)
}

func (p *Pipeline) FatalfWithFields(fields map[string]any, format string, v ...any) {
	p.log(FATAL, fmt.Sprintf(format, v...), fields)
}
