package global

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const configTOMLFileName = "config.toml"

// Defaults are the persistent per-user defaults applied when a run does
// not override them on the command line or environment.
type Defaults struct {
	RiskMode     string `toml:"risk_mode"`
	ResponderURL string `toml:"responder_url"`
}

type GlobalConfig struct {
	LogDir   string   `toml:"log_dir,omitempty"`
	DBPath   string   `toml:"db_path,omitempty"`
	Defaults Defaults `toml:"defaults"`
}

type ConfigStore struct {
	dir string
}

func NewConfigStore(dir string) *ConfigStore {
	return &ConfigStore{dir: dir}
}

func (s *ConfigStore) LoadOrInit() (GlobalConfig, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return GlobalConfig{}, err
	}

	path := filepath.Join(s.dir, configTOMLFileName)
	if b, err := os.ReadFile(path); err == nil {
		var cfg GlobalConfig
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return GlobalConfig{}, err
		}
		return normalizeConfig(cfg), nil
	} else if !os.IsNotExist(err) {
		return GlobalConfig{}, err
	}

	cfg := normalizeConfig(GlobalConfig{})
	if err := writeTOMLAtomically(path, cfg); err != nil {
		return GlobalConfig{}, err
	}
	return cfg, nil
}

func (s *ConfigStore) Save(cfg GlobalConfig) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeTOMLAtomically(filepath.Join(s.dir, configTOMLFileName), normalizeConfig(cfg))
}

func normalizeConfig(cfg GlobalConfig) GlobalConfig {
	mode := strings.ToLower(strings.TrimSpace(cfg.Defaults.RiskMode))
	switch mode {
	case "off", "safe", "balanced", "yolo":
	default:
		mode = "safe"
	}
	cfg.Defaults.RiskMode = mode
	cfg.Defaults.ResponderURL = strings.TrimSpace(cfg.Defaults.ResponderURL)
	cfg.LogDir = strings.TrimSpace(cfg.LogDir)
	cfg.DBPath = strings.TrimSpace(cfg.DBPath)
	return cfg
}

func writeTOMLAtomically(path string, v any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
