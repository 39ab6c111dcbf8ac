package gourdianfanout

import (
	"cmp"
	"math"
	"slices"
	"strings"
)

// SourceField is the event field matched against Config.LevelOverrides,
// typically a component or package name such as "System.Net".
const SourceField = "source"

// noOverrideFloor marks a pipeline without per-source overrides.
const noOverrideFloor = math.MaxInt32

type levelOverride struct {
	prefix string // lowercased
	level  Level
}

// levelOverrides is ordered longest prefix first, so the first match is the
// most specific.
type levelOverrides []levelOverride

func newLevelOverrides(m map[string]Level) levelOverrides {
	if len(m) == 0 {
		return nil
	}
	o := make(levelOverrides, 0, len(m))
	for source, level := range m {
		o = append(o, levelOverride{prefix: strings.ToLower(strings.TrimSpace(source)), level: level})
	}
	slices.SortFunc(o, func(a, b levelOverride) int {
		if n := cmp.Compare(len(b.prefix), len(a.prefix)); n != 0 {
			return n
		}
		return strings.Compare(a.prefix, b.prefix)
	})
	return o
}

// lookup returns the minimum severity for source, if an override matches.
func (o levelOverrides) lookup(source string) (Level, bool) {
	if len(o) == 0 || source == "" {
		return 0, false
	}
	source = strings.ToLower(source)
	for _, ov := range o {
		if source == ov.prefix ||
			(strings.HasPrefix(source, ov.prefix) && source[len(ov.prefix)] == '.') {
			return ov.level, true
		}
	}
	return 0, false
}

// floor is the lowest override level, or noOverrideFloor.
func (o levelOverrides) floor() int32 {
	floor := int32(noOverrideFloor)
	for _, ov := range o {
		floor = min(floor, int32(ov.level))
	}
	return floor
}

// eventSource returns the string source field of fields.
func eventSource(fields map[string]any) string {
	s, _ := fields[SourceField].(string)
	return s
}
