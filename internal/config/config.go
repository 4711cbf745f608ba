package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	DBPath   string `json:"db_path,omitempty"`
	LogLevel string `json:"log_level"`
	HTTP     struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		UIDir        string `json:"ui_dir"`
		MaxBodyBytes int64  `json:"max_body_bytes"`
	} `json:"http"`
	Stream struct {
		SnapshotLimit       int   `json:"snapshot_limit"`
		SendBuffer          int   `json:"send_buffer"`
		PingIntervalSeconds int   `json:"ping_interval_seconds"`
		MaxSubscribers      int64 `json:"max_subscribers"`
	} `json:"stream"`
	Maintenance struct {
		CheckpointSchedule string `json:"checkpoint_schedule"`
		StatsSchedule      string `json:"stats_schedule"`
	} `json:"maintenance"`
	Client struct {
		ServerURL      string `json:"server_url"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"client"`
}

// DefaultDataDir is $HOME/.agentwatch, or .agentwatch when no home is known.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentwatch"
	}
	return filepath.Join(home, ".agentwatch")
}

// DefaultPath returns the config file location inside the default data dir.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:  DefaultDataDir(),
		LogLevel: "info",
	}
	cfg.HTTP.Port = 4000
	cfg.HTTP.MaxBodyBytes = 10 << 20
	cfg.Stream.SnapshotLimit = 300
	cfg.Stream.SendBuffer = 256
	cfg.Stream.PingIntervalSeconds = 30
	cfg.Maintenance.CheckpointSchedule = "@every 10m"
	cfg.Maintenance.StatsSchedule = "@hourly"
	cfg.Client.ServerURL = "http://localhost:4000"
	cfg.Client.TimeoutSeconds = 5
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if port := os.Getenv("SERVER_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("invalid SERVER_PORT %q", port)
		}
		cfg.HTTP.Port = n
	}
	if dir := os.Getenv("AGENTWATCH_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if level := os.Getenv("AGENTWATCH_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if url := os.Getenv("OBSERVABILITY_SERVER_URL"); url != "" {
		cfg.Client.ServerURL = url
	}

	return cfg, nil
}

// ListenAddr is the host:port the server binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.HTTP.Host, strconv.Itoa(c.HTTP.Port))
}

// DatabasePath is db_path when set, otherwise events.db in the data dir.
func (c *Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "events.db")
}

// PIDPath is where serve records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir, "agentwatch.pid")
}

func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Stream.PingIntervalSeconds) * time.Second
}

func (c *Config) ClientTimeout() time.Duration {
	return time.Duration(c.Client.TimeoutSeconds) * time.Second
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return writeAtomic(path, cfg)
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return writeAtomic(path, cfg)
}

func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to a nested map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns cfg as a flat map of dotted keys.
func ListValues(cfg *Config) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	return Flatten(m), nil
}

// GetValue loads the config at path and returns the value for a dotted key.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg)
	if err != nil {
		return nil, err
	}
	// Keys that only exist in the file (not in Config) are still readable.
	if raw, err := readRaw(path); err == nil {
		for k, v := range Flatten(raw) {
			if _, ok := flat[k]; !ok {
				flat[k] = v
			}
		}
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue sets a dotted key in the config file at path. The raw value is
// parsed as JSON when possible and kept as a string otherwise. The result
// must still decode into Config.
func SetValue(path, key, raw string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m, err := readRaw(path)
	if err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}

	flat := Flatten(m)
	flat[key] = v
	nested := Unflatten(flat)

	data, err := json.Marshal(nested)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var check Config
	if err := json.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	return writeAtomic(path, nested)
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	m := make(map[string]any)
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return m, nil
}
