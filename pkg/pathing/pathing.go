package pathing

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	defaultDataDir   = "/var/lib/cul_bridge"
	defaultConfigDir = "/etc/cul_bridge"
)

// EnsureDirs creates the data and config directories if missing.
func EnsureDirs() error {
	for _, dir := range []string{GetDataDir(), GetConfigDir()} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
		}
	}
	return nil
}

func GetObjectDbPath() string {
	return filepath.Join(GetDataDir(), "cul-objects.db")
}

func GetRolesPath() string {
	return filepath.Join(GetConfigDir(), "roles.yaml")
}

// GetDataDir honors CUL_DATA_DIR.
func GetDataDir() string {
	if dir := os.Getenv("CUL_DATA_DIR"); dir != "" {
		return dir
	}
	return defaultDataDir
}

// GetConfigDir honors CUL_CONFIG_DIR.
func GetConfigDir() string {
	if dir := os.Getenv("CUL_CONFIG_DIR"); dir != "" {
		return dir
	}
	return defaultConfigDir
}
