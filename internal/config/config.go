package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Portal  Portal  `yaml:"portal"`
	Browser Browser `yaml:"browser"`
	Output  Output  `yaml:"output"`
	Server  Server  `yaml:"server"`
}

type Portal struct {
	LoginURL   string `yaml:"login_url"`
	RecordsURL string `yaml:"records_url"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
}

type Browser struct {
	Headless       bool `yaml:"headless"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

// ConfigDir returns the XDG config directory for valersync.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "valersync")
}

// DataDir returns the XDG data directory for valersync.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "valersync")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/valersync/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'valersync init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults and
// environment overrides for the portal credentials.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Portal: Portal{
			LoginURL:   "https://the-internet.herokuapp.com/login",
			RecordsURL: "https://the-internet.herokuapp.com/tables",
			Username:   "tomsmith",
			Password:   "SuperSecretPassword!",
		},
		Browser: Browser{
			Headless:       true,
			TimeoutSeconds: 30,
		},
		Server: Server{Port: 5000},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Credentials from the environment win over the file.
	if v := os.Getenv("PORTAL_USERNAME"); v != "" {
		cfg.Portal.Username = v
	}
	if v := os.Getenv("PORTAL_PASSWORD"); v != "" {
		cfg.Portal.Password = v
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
