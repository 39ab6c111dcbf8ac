package gourdianfanout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// LogFormat selects how events are serialized into segment files.
type LogFormat int

const (
	FormatPlain LogFormat = iota
	FormatJSON
)

// ParseLogFormat converts "plain" or "json" (case-insensitive) to a LogFormat.
func ParseLogFormat(s string) (LogFormat, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "PLAIN", "TEXT":
		return FormatPlain, nil
	case "JSON":
		return FormatJSON, nil
	default:
		return FormatPlain, fmt.Errorf("invalid log format: %s", s)
	}
}

func (f LogFormat) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "plain"
}

// Formatter serializes one event as a single newline-terminated entry.
type Formatter interface {
	Format(buf *bytes.Buffer, e Event)
}

// PlainFormatter writes entries as
//
//	timestamp [LEVEL] message {key=value, ...}
//
// Field keys are sorted. Newlines inside the message or values are escaped
// so every event occupies exactly one line.
type PlainFormatter struct {
	TimestampFormat string
}

func (f PlainFormatter) Format(buf *bytes.Buffer, e Event) {
	buf.WriteString(e.Time.Format(f.TimestampFormat))
	buf.WriteByte(' ')
	buf.WriteByte('[')
	buf.WriteString(e.Level.String())
	buf.WriteByte(']')
	buf.WriteByte(' ')
	writeEscaped(buf, e.Message)

	if len(e.Fields) > 0 {
		buf.WriteString(" {")
		for i, k := range sortedKeys(e.Fields) {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(k)
			buf.WriteByte('=')
			writeEscaped(buf, fmt.Sprint(e.Fields[k]))
		}
		buf.WriteByte('}')
	}

	buf.WriteByte('\n')
}

// JSONFormatter writes one JSON object per line with timestamp, level and
// message keys followed by the event fields. Fields never overwrite the three
// reserved keys.
type JSONFormatter struct {
	TimestampFormat string
}

func (f JSONFormatter) Format(buf *bytes.Buffer, e Event) {
	entry := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}
	entry["timestamp"] = e.Time.Format(f.TimestampFormat)
	entry["level"] = e.Level.String()
	entry["message"] = e.Message

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(buf, `{"timestamp":%q,"level":%q,"message":%q,"error":%q}`+"\n",
			e.Time.Format(f.TimestampFormat), e.Level.String(), e.Message,
			"failed to marshal log entry: "+err.Error())
		return
	}
	buf.Write(data)
	buf.WriteByte('\n')
}

func newFormatter(format LogFormat, timestampFormat string) Formatter {
	if format == FormatJSON {
		return JSONFormatter{TimestampFormat: timestampFormat}
	}
	return PlainFormatter{TimestampFormat: timestampFormat}
}

var escaper = strings.NewReplacer("\r", `\r`, "\n", `\n`)

func writeEscaped(buf *bytes.Buffer, s string) {
	if strings.ContainsAny(s, "\r\n") {
		escaper.WriteString(buf, s)
		return
	}
	buf.WriteString(s)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 256))
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	// Oversized buffers are left for the GC.
	if buf.Cap() > 64<<10 {
		return
	}
	bufferPool.Put(buf)
}
