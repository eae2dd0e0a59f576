package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

const configHeader = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# Paths are relative to the home directory unless absolute. The home
# directory is "$HOME/.chainbook" by default, and can be changed with
# $CHAINBOOK_HOME or the --home flag.

`

// EnsureRoot creates the root, config, and data directories if they don't
// exist.
func EnsureRoot(rootDir string) error {
	for _, dir := range []string{
		rootDir,
		filepath.Join(rootDir, defaultConfigDir),
		filepath.Join(rootDir, defaultDataDir),
	} {
		if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
			return fmt.Errorf("could not create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ConfigFile returns the path of config.toml under rootDir.
func ConfigFile(rootDir string) string {
	return filepath.Join(rootDir, defaultConfigFilePath)
}

// WriteConfigFile encodes config to config.toml under rootDir.
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteTo(ConfigFile(rootDir))
}

// WriteTo writes the config as TOML to the exact file specified by path.
func (cfg *Config) WriteTo(path string) error {
	var buf bytes.Buffer
	buf.WriteString(configHeader)
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// WriteDefaultConfigFileIfNone writes the default config unless config.toml
// already exists. It reports whether a file was written.
func WriteDefaultConfigFileIfNone(rootDir string) (bool, error) {
	path := ConfigFile(rootDir)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	return true, WriteConfigFile(rootDir, DefaultConfig())
}
