package gourdianfanout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelParsing(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"DEBUG", DEBUG, false},
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"Information", INFO, false},
		{"WARN", WARN, false},
		{"warning", WARN, false},
		{" error ", ERROR, false},
		{"FATAL", FATAL, false},
		{"INVALID", DEBUG, true},
		{"", DEBUG, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", DEBUG.String())
	assert.Equal(t, "WARN", WARN.String())
	assert.Equal(t, "FATAL", FATAL.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
	assert.Equal(t, "UNKNOWN", Level(-1).String())
}

func TestLevelText(t *testing.T) {
	var l Level
	require.NoError(t, l.UnmarshalText([]byte("warning")))
	assert.Equal(t, WARN, l)
	assert.Error(t, l.UnmarshalText([]byte("loud")))

	b, err := ERROR.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "ERROR", string(b))

	_, err = Level(9).MarshalText()
	assert.Error(t, err)
}

func TestLevelsAreOrdered(t *testing.T) {
	levels := Levels()
	require.Len(t, levels, levelCount)
	for i := 1; i < len(levels); i++ {
		assert.Less(t, levels[i-1], levels[i])
	}
}
