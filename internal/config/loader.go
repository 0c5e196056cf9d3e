package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every gitglean environment variable.
	EnvPrefix = "GITGLEAN_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// listKeys are split on commas when set from the environment.
var listKeys = map[string]bool{
	"github.extensions":   true,
	"github.ignored_dirs": true,
}

// Load builds the configuration and validates it.
//
// Precedence (highest to lowest):
//  1. GITGLEAN_* environment variables, with "__" separating levels:
//     GITGLEAN_EMBEDDING__API_KEY -> embedding.api_key
//  2. The YAML file at path, when path is not empty
//  3. Conventional variables: GITHUB_TOKEN, OPENAI_API_KEY, TOGETHER_API_KEY, PORT
//  4. Defaults()
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// load is Load without validation.
func load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKeyValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Defaults()
	applyConventionalEnv(&cfg)
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s too large: %d bytes (max %d)", path, info.Size(), maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// envKeyValue maps GITGLEAN_STORAGE__QDRANT__HOST to storage.qdrant.host.
func envKeyValue(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		parts := strings.Split(value, ",")
		list := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, p)
			}
		}
		return key, list
	}
	return key, value
}

// applyConventionalEnv honours the variable names other tools already use.
func applyConventionalEnv(cfg *Config) {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	for _, name := range []string{"OPENAI_API_KEY", "TOGETHER_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			cfg.Embedding.APIKey = v
			break
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = "0.0.0.0:" + v
	}
}
