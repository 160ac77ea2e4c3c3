package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file (optional) and applies
// environment overrides on top of defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays ORFREE_* environment variables onto the config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ORFREE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("ORFREE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ORFREE_BASE_PATH"); v != "" {
		cfg.Server.BasePath = v
	}
	if v := os.Getenv("ORFREE_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("ORFREE_MODEL"); v != "" {
		cfg.Upstream.Model = v
	}
	if v := os.Getenv("ORFREE_PROXY_URL"); v != "" {
		cfg.Upstream.ProxyURL = v
	}
	if v := os.Getenv("ORFREE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upstream.MaxRetries = n
		}
	}
	if v := os.Getenv("ORFREE_DEBUG"); v != "" {
		cfg.Security.Debug = parseBool(v)
	}
	if v := os.Getenv("ORFREE_LOG_FILE"); v != "" {
		cfg.Security.LogFile = v
	}
	if v := os.Getenv("ORFREE_API_KEYS"); v != "" {
		cfg.Security.APIKeys = splitList(v)
	}
	if v := os.Getenv("ORFREE_MANAGEMENT_KEY"); v != "" {
		cfg.Security.ManagementKey = v
	}
	if v := os.Getenv("ORFREE_MANAGEMENT_KEY_HASH"); v != "" {
		cfg.Security.ManagementKeyHash = v
	}
	if v := os.Getenv("ORFREE_REDIS_URL"); v != "" {
		cfg.Stats.RedisURL = v
	}

	if keys := keysFromEnv(); len(keys) > 0 {
		cfg.Keys = keys
	}
}

// keysFromEnv collects API keys from ORFREE_KEYS (comma separated) plus any
// numbered ORFREE_KEY_n variables, preserving numeric order.
func keysFromEnv() []string {
	var keys []string
	if v := os.Getenv("ORFREE_KEYS"); v != "" {
		keys = append(keys, splitList(v)...)
	}

	type numbered struct {
		n   int
		key string
	}
	var extras []numbered
	for _, entry := range os.Environ() {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || value == "" || !strings.HasPrefix(name, "ORFREE_KEY_") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, "ORFREE_KEY_"))
		if err != nil {
			continue
		}
		extras = append(extras, numbered{n: n, key: strings.TrimSpace(value)})
	}
	sort.Slice(extras, func(i, j int) bool { return extras[i].n < extras[j].n })
	for _, e := range extras {
		keys = append(keys, e.key)
	}
	return dedupe(keys)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
