// Package config loads the daemon configuration. The embedded default.toml
// is decoded first and the config file is decoded on top of it, so a file
// only needs the keys it changes. A missing file is not an error.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

//go:embed default.toml
var defaultConfigTOML string

const DefaultConfigPath = "/etc/pdaltmode/pdaltmode.toml"

type Config struct {
	Logging LoggingConfig `toml:"logging"`
	Engine  EngineConfig  `toml:"engine"`
	HostCmd HostCmdConfig `toml:"hostcmd"`
	Board   BoardConfig   `toml:"board"`
}

type LoggingConfig struct {
	// Level is a log spec such as "info,tbt=debug".
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// Components are merged into Level when Level is empty.
	Components map[string]string `toml:"components"`
}

// ToSpec returns Level, or a spec built from Components.
func (c *LoggingConfig) ToSpec() string {
	if c.Level != "" {
		return c.Level
	}
	if len(c.Components) == 0 {
		return ""
	}

	var names []string
	for component := range c.Components {
		names = append(names, component)
	}
	sort.Strings(names)

	parts := []string{"info"}
	for _, component := range names {
		parts = append(parts, component+"="+c.Components[component])
	}
	return strings.Join(parts, ",")
}

type EngineConfig struct {
	// SVDMVersion is "1.0" or "2.0".
	SVDMVersion   string `toml:"svdm_version"`
	APModeEntry   bool   `toml:"ap_mode_entry"`
	DiscoverCable bool   `toml:"discover_cable"`
}

// Version converts SVDMVersion.
func (c *EngineConfig) Version() (pdvdm.Version, error) {
	switch c.SVDMVersion {
	case "1.0", "1":
		return pdvdm.Version10, nil
	case "2.0", "2", "":
		return pdvdm.Version20, nil
	}
	return 0, fmt.Errorf("unsupported svdm_version %q", c.SVDMVersion)
}

type HostCmdConfig struct {
	Listen string `toml:"listen"`
	// APIKey protects the write endpoints when set.
	APIKey   string `toml:"api_key"`
	MDNS     bool   `toml:"mdns"`
	MDNSName string `toml:"mdns_name"`
}

type BoardConfig struct {
	// Path to a .yaml or .dtb board description. Empty simulates one port.
	Path string `toml:"path"`
}

func DefaultConfig() Config {
	var cfg Config
	if _, err := toml.Decode(defaultConfigTOML, &cfg); err != nil {
		panic(fmt.Sprintf("embedded default.toml: %v", err))
	}
	return cfg
}

// Load overlays the file at path on the defaults. An empty path uses
// DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if _, err := c.Engine.Version(); err != nil {
		return err
	}
	if c.HostCmd.MDNS && c.HostCmd.MDNSName == "" {
		return fmt.Errorf("hostcmd.mdns_name is required when mdns is enabled")
	}
	return nil
}
