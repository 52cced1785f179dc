package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the per-project override file looked up in each
// served folder.
const ProjectConfigName = "sorrel.yaml"

// Load builds a Config from layered sources: built-in defaults, then the
// global config file (explicit path, SORREL_CONFIG, or the default
// location), then a project-level sorrel.yaml found in the first served
// folder. Later layers win. CLI overrides are the caller's business.
func Load(configPath string, folders []string, getenv func(string) string) (*Config, error) {
	cfg := Defaults()

	path := resolveConfigPath(configPath, getenv)
	if path != "" {
		if err := mergeFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
		abs, err := filepath.Abs(path)
		if err == nil {
			cfg.BaseDir = filepath.Dir(abs)
		}
	}

	// Project overrides: the first folder that carries a sorrel.yaml wins.
	for _, folder := range folders {
		project := filepath.Join(folder, ProjectConfigName)
		if _, err := os.Stat(project); err == nil {
			if err := mergeFile(cfg, project); err != nil {
				return nil, fmt.Errorf("loading project config %s: %w", project, err)
			}
			break
		}
	}

	if len(folders) > 0 {
		cfg.Folders = absFolders(folders)
	} else if len(cfg.Folders) > 0 {
		cfg.Folders = absFolders(cfg.Folders)
	}

	// Quiet mode suppresses request and info logs whichever layer set it
	if cfg.Logging.Quiet {
		cfg.Logging.Level = "warn"
	}

	return cfg, nil
}

// mergeFile unmarshals a YAML file over an existing config. Scalars and
// lists present in the file replace the current values; absent keys keep
// the layer below.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// resolveConfigPath finds the global config file. An explicit path is
// required to exist; the conventional locations are optional.
func resolveConfigPath(configPath string, getenv func(string) string) string {
	if configPath != "" {
		return configPath
	}
	if env := getenv("SORREL_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat("sorrel.yaml"); err == nil {
		return "sorrel.yaml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".config", "sorrel", "sorrel.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func absFolders(folders []string) []string {
	out := make([]string, 0, len(folders))
	seen := make(map[string]bool)
	for _, f := range folders {
		abs, err := filepath.Abs(f)
		if err != nil {
			abs = f
		}
		// Duplicate folders would make first-match-wins lookups confusing
		if seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	return out
}
