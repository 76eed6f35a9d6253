package deployment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File names written into the display directory.
const (
	DisplayConfigFile   = "config.json"
	InterfaceConfigFile = "interface.json"
)

// DisplayConfig tells the display layer where the engine lives.
type DisplayConfig struct {
	Network       string `json:"network"`
	EngineAddress string `json:"engineAddress"`
	Deployer      string `json:"deployer"`
	InstanceID    string `json:"instanceId"`
}

// NewDisplayConfig derives the display configuration from a manifest.
func NewDisplayConfig(network string, m Manifest) DisplayConfig {
	return DisplayConfig{
		Network:       network,
		EngineAddress: m.PublicAddress,
		Deployer:      m.Admin,
		InstanceID:    m.InstanceID,
	}
}

// WriteDisplay writes config.json and the interface description into dir.
func WriteDisplay(dir string, cfg DisplayConfig, iface any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create display directory: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, DisplayConfigFile), cfg); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, InterfaceConfigFile), iface)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
