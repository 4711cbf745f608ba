package config

import (
	"fmt"
	"maps"
	"os"
	"reflect"
	"slices"
	"strings"
)

// Flatten converts a nested map into a flat map with dot-separated keys.
// For example, {"http": {"port": 4000}} becomes {"http.port": 4000}.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(key, child, out)
			continue
		}
		out[key] = v
	}
}

// Unflatten converts a flat map with dot-separated keys back into a nested
// map. A scalar in the way of a deeper key is replaced by a map.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range flat {
		parts := strings.Split(k, ".")
		current := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := current[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				current[part] = next
			}
			current = next
		}
		current[parts[len(parts)-1]] = v
	}
	return out
}

// SortedKeys returns the keys of a flat map in lexical order.
func SortedKeys(flat map[string]any) []string {
	return slices.Sorted(maps.Keys(flat))
}

// checkKey rejects dotted keys with empty segments such as "http." or
// "a..b", which would otherwise write a "" member into the file.
func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty config key")
	}
	if slices.Contains(strings.Split(key, "."), "") {
		return fmt.Errorf("invalid config key: %s", key)
	}
	return nil
}

// envKeys maps the environment variables Load honours to the keys they
// override.
var envKeys = map[string]string{
	"data_dir":          "AGENTWATCH_DATA_DIR",
	"log_level":         "AGENTWATCH_LOG_LEVEL",
	"http.port":         "SERVER_PORT",
	"client.server_url": "OBSERVABILITY_SERVER_URL",
}

// Entry is one effective setting next to its built-in default.
type Entry struct {
	Key     string
	Value   any
	Default any
	// Env names the environment variable that set Value, if any.
	Env string
}

// Overridden reports whether the effective value differs from the default.
func (e Entry) Overridden() bool {
	return !reflect.DeepEqual(e.Value, e.Default)
}

// Entries lists every key of cfg and of the defaults, sorted by key.
func Entries(cfg *Config) ([]Entry, error) {
	values, err := ListValues(cfg)
	if err != nil {
		return nil, err
	}
	defs, err := ListValues(defaults())
	if err != nil {
		return nil, err
	}

	all := maps.Clone(values)
	maps.Copy(all, defs)

	entries := make([]Entry, 0, len(all))
	for _, key := range SortedKeys(all) {
		e := Entry{Key: key, Value: values[key], Default: defs[key]}
		if env, ok := envKeys[key]; ok && os.Getenv(env) != "" {
			e.Env = env
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DefaultValue returns the built-in default for a dotted key.
func DefaultValue(key string) (any, error) {
	defs, err := ListValues(defaults())
	if err != nil {
		return nil, err
	}
	v, ok := defs[key]
	if !ok {
		return nil, fmt.Errorf("no default for config key: %s", key)
	}
	return v, nil
}
