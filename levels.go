package gourdianfanout

import (
	"fmt"
	"strings"
)

// Level represents the severity of a log event.
// Higher values indicate more severe events.
type Level int32

// Severity constants, ordered from least to most severe:
// - DEBUG: Detailed information for debugging
// - INFO: General operational information
// - WARN: Potentially harmful situations
// - ERROR: Serious problems
// - FATAL: Critical failures (logged only, the process is never terminated)
const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL

	levelCount = int(FATAL) + 1
)

var levelNames = [levelCount]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// Levels returns every defined severity in ascending order.
func Levels() []Level {
	return []Level{DEBUG, INFO, WARN, ERROR, FATAL}
}

// Valid reports whether l is one of the defined severities.
func (l Level) Valid() bool {
	return l >= DEBUG && int(l) < levelCount
}

// String converts a Level to its string representation.
//
// Returns:
//   - string: Uppercase name of the level, or "UNKNOWN" for undefined values
func (l Level) String() string {
	if !l.Valid() {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel converts a string to its corresponding Level.
//
// Parameters:
//   - level: Name of the level (case-insensitive). "WARNING" and
//     "INFORMATION" are accepted as aliases.
//
// Returns:
//   - Level: Corresponding level constant
//   - error: Error if the input string is not a valid level
//
// Example:
//
//	level, err := ParseLevel("warning")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(level) // Output: WARN
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "INFORMATION":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "FATAL":
		return FATAL, nil
	default:
		return DEBUG, fmt.Errorf("invalid log level: %s", level)
	}
}

// UnmarshalText lets Level decode from configuration files and flags.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid log level: %d", int32(l))
	}
	return []byte(l.String()), nil
}
