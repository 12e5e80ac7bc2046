package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Backend  struct {
		BaseURL   string `json:"base_url"`
		Token     string `json:"token"`
		TokenFile string `json:"token_file"`
	} `json:"backend"`
	Chat struct {
		DefaultCategory       string `json:"default_category"`
		StreamIdleTimeoutSecs int    `json:"stream_idle_timeout_secs"`
		MaxMessageTokens      int    `json:"max_message_tokens"`
		TokenizerModel        string `json:"tokenizer_model"`
	} `json:"chat"`
	Refresh struct {
		Schedule string `json:"schedule"`
	} `json:"refresh"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir: filepath.Join(os.Getenv("HOME"), ".studychat"),
	}
	cfg.LogLevel = "info"
	cfg.Backend.BaseURL = "http://localhost:8000/api/v1"
	cfg.Chat.DefaultCategory = "general"
	cfg.Chat.StreamIdleTimeoutSecs = 30
	cfg.Chat.MaxMessageTokens = 4000
	cfg.Chat.TokenizerModel = "gpt-4o"
	cfg.Refresh.Schedule = "@every 60s"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// A .env next to the config file feeds the env overrides below.
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	// Override from env (highest precedence)
	if token := os.Getenv("STUDYCHAT_TOKEN"); token != "" {
		cfg.Backend.Token = token
	}
	if baseURL := os.Getenv("STUDYCHAT_BASE_URL"); baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}
	if tokenFile := os.Getenv("STUDYCHAT_TOKEN_FILE"); tokenFile != "" {
		cfg.Backend.TokenFile = tokenFile
	}

	return cfg, nil
}

// Save writes the config atomically, creating the parent directory as
// needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
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

// ToMap converts the config to its nested map form via its JSON encoding.
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

// ListValues returns the config as a flat dot-keyed map, optionally with
// secret values masked for display.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads one dot-keyed value from the config file at path.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg, false)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// KnownKey reports whether key names a field of the config schema. Keys
// are derived from the schema itself so they track the struct.
func KnownKey(key string) bool {
	m, err := ToMap(&Config{})
	if err != nil {
		return false
	}
	_, ok := Flatten(m)[key]
	return ok
}

// KnownKeys returns every settable dot key, sorted.
func KnownKeys() []string {
	m, err := ToMap(&Config{})
	if err != nil {
		return nil
	}
	flat := Flatten(m)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetValue writes one dot-keyed value into the config file at path. The
// key must name a schema field; the raw value is JSON-decoded when
// possible so numbers and booleans keep their types, otherwise it is
// stored as a string.
func SetValue(path, key, raw string) error {
	if !KnownKey(key) {
		return fmt.Errorf("unknown config key: %s", key)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}

	flat := Flatten(m)
	flat[key] = value
	nested := Unflatten(flat)

	out, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, out, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
