// Package board describes the Type-C ports of a board: which mux drives
// each port and the per-port alternate mode settings. Descriptions are read
// from YAML or from a flattened device tree.
package board

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BertoldVdb/PDAltMode/altmode"
)

type Port struct {
	Name string `yaml:"name"`
	// Mux is a hwmux path such as "i2c:/dev/i2c-1:0x30:GPIO22".
	Mux              string `yaml:"mux"`
	MFAllow          bool   `yaml:"mfAllow"`
	SafeBeforeConfig bool   `yaml:"safeBeforeConfig"`
	MaxTBTSpeed      int    `yaml:"maxTbtSpeed"`
}

type Board struct {
	Name          string `yaml:"name"`
	DiscoverCable bool   `yaml:"discoverCable"`
	Ports         []Port `yaml:"ports"`
}

// Default is a single simulated port.
func Default() Board {
	return Board{
		Name:          "sim",
		DiscoverCable: true,
		Ports:         []Port{{Name: "port0", Mux: "sim", MFAllow: true}},
	}
}

// Validate checks the description and fills in defaults.
func (b *Board) Validate() error {
	if len(b.Ports) == 0 {
		return errors.New("board has no ports")
	}

	for i := range b.Ports {
		p := &b.Ports[i]
		if p.Name == "" {
			p.Name = fmt.Sprintf("port%d", i)
		}
		if p.Mux == "" {
			p.Mux = "sim"
		}
		if p.MaxTBTSpeed < 0 || p.MaxTBTSpeed > 3 {
			return fmt.Errorf("%s: invalid maxTbtSpeed %d", p.Name, p.MaxTBTSpeed)
		}
	}
	return nil
}

// PortConfigs returns the engine settings of every port.
func (b Board) PortConfigs() []altmode.PortConfig {
	out := make([]altmode.PortConfig, len(b.Ports))
	for i, p := range b.Ports {
		out[i] = altmode.PortConfig{
			MFAllow:          p.MFAllow,
			SafeBeforeConfig: p.SafeBeforeConfig,
			MaxTBTSpeed:      p.MaxTBTSpeed,
		}
	}
	return out
}

// MuxPaths returns the hwmux path of every port.
func (b Board) MuxPaths() []string {
	out := make([]string, len(b.Ports))
	for i, p := range b.Ports {
		out[i] = p.Mux
	}
	return out
}

func ParseYAML(data []byte) (Board, error) {
	var b Board
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Board{}, fmt.Errorf("failed to parse board: %w", err)
	}
	if err := b.Validate(); err != nil {
		return Board{}, err
	}
	return b, nil
}

func LoadYAML(path string) (Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Board{}, err
	}
	return ParseYAML(data)
}

// Load reads a .yaml/.yml or .dtb description. An empty path returns
// Default.
func Load(path string) (Board, error) {
	if path == "" {
		return Default(), nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	case ".dtb":
		return LoadDTB(path)
	}
	return Board{}, fmt.Errorf("unknown board description format: %s", path)
}
