package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// yamlConfig mirrors the on-disk agentbus.yaml structure exactly.
type yamlConfig struct {
	DataDir          string                      `yaml:"data_dir"`
	LogDir           string                      `yaml:"log_dir"`
	Bus              *BusConfig                  `yaml:"bus"`
	Runtime          *RuntimeConfig              `yaml:"runtime"`
	Agents           map[string]*AgentIdentity   `yaml:"agents"`
	DeploymentGroups map[string]*DeploymentGroup `yaml:"deployment_groups"`
}

// Initialize loads agentbus.yaml (and any sibling .env file) from
// configDir, merges it with built-in runtime defaults, builds the agent and
// deployment registries, and validates the result. This is the sole entry
// point callers (cmd/agentbusd) should use.
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("loading configuration")

	// .env is loaded best-effort: its absence is normal in production where
	// secrets come from the real environment.
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to load .env file", "error", err)
	}

	raw, err := loadYAML(configDir, "agentbus.yaml")
	if err != nil {
		return nil, NewLoadError("agentbus.yaml", err)
	}

	runtimeCfg := DefaultRuntimeConfig()
	if raw.Runtime != nil {
		if err := mergo.Merge(runtimeCfg, raw.Runtime, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging runtime config: %w", err)
		}
	}

	if raw.Bus == nil {
		return nil, NewValidationError("bus", "", "", ErrMissingRequiredField)
	}
	if raw.DataDir == "" {
		raw.DataDir = "./data"
	}
	if raw.LogDir == "" {
		raw.LogDir = "./logs"
	}
	for name, identity := range raw.Agents {
		if identity.Name == "" {
			identity.Name = name
		}
	}
	for id, group := range raw.DeploymentGroups {
		if group.ID == "" {
			group.ID = id
		}
	}

	cfg := &Config{
		DataDir:            raw.DataDir,
		LogDir:             raw.LogDir,
		Bus:                raw.Bus,
		Runtime:            runtimeCfg,
		AgentRegistry:      NewAgentRegistry(raw.Agents),
		DeploymentRegistry: NewDeploymentRegistry(raw.DeploymentGroups),
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("configuration loaded",
		"agents", stats.Agents,
		"deployment_groups", stats.DeploymentGroups)
	return cfg, nil
}

func loadYAML(configDir, filename string) (*yamlConfig, error) {
	path := filepath.Join(configDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	data = ExpandEnv(data)

	cfg := &yamlConfig{
		Agents:           make(map[string]*AgentIdentity),
		DeploymentGroups: make(map[string]*DeploymentGroup),
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return cfg, nil
}
