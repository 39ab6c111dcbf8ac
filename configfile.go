package gourdianfanout

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
)

// LoadConfigFile reads one or more configuration files, later files
// overriding earlier ones, on top of DefaultConfig. The format is chosen by
// extension: .json, .yaml/.yml or .toml.
//
// Example config.yaml:
//
//	log_directory: /var/log/myapp
//	max_segment_size_bytes: 10485760
//	retained_segment_count: 2
//	minimum_severity: info
//	shutdown_grace: 3s
func LoadConfigFile(paths ...string) (Config, error) {
	cfg := DefaultConfig()
	if err := DecodeConfigFiles(&cfg, paths...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DecodeConfigFiles merges the given files and decodes the result into
// target, which must be a pointer to a struct using mapstructure tags.
// Fields absent from every file keep their current value, so target can be
// pre-filled with defaults.
func DecodeConfigFiles(target any, paths ...string) error {
	merged := make(map[string]any)
	for _, path := range paths {
		values, err := readConfigFile(path)
		if err != nil {
			return err
		}
		if err := mergo.Map(&merged, values, mergo.WithOverride); err != nil {
			return &ConfigError{Field: path, Err: fmt.Errorf("failed to merge: %w", err)}
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.TextUnmarshallerHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(merged); err != nil {
		return &ConfigError{Err: fmt.Errorf("failed to decode configuration: %w", err)}
	}
	return nil
}

func readConfigFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: path, Err: err}
	}

	values := make(map[string]any)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &values)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &values)
	case ".toml":
		err = toml.Unmarshal(data, &values)
	default:
		return nil, &ConfigError{Field: path, Err: fmt.Errorf("unsupported config format %q", ext)}
	}
	if err != nil {
		return nil, &ConfigError{Field: path, Err: err}
	}
	return normalizeKeys(values), nil
}

// normalizeKeys lowercases keys recursively so files can be merged
// case-insensitively.
func normalizeKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = normalizeKeys(nested)
		}
		out[strings.ToLower(k)] = v
	}
	return out
}
