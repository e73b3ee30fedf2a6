package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory.
func Load(path string) (*Configuration, error) {
	return loadFs(afero.NewOsFs(), path)
}

func loadFs(fs afero.Fs, path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}

	configContents, err := afero.ReadFile(fs, filepath.Join(path, ConfigurationName))
	if err != nil {
		return nil, err
	}
	var out Configuration
	if err := yaml.UnmarshalStrict(configContents, &out); err != nil {
		return nil, err
	}
	out.configFs = fs
	out.configDir = path

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &out, nil
}

// Initialize writes a default configuration layout into the directory.
// Existing files are left untouched.
func Initialize(path string, logger *log.Logger) error {
	return initializeFs(afero.NewOsFs(), path, logger)
}

func initializeFs(fs afero.Fs, path string, logger *log.Logger) error {
	if err := fs.MkdirAll(filepath.Join(path, LibDirName), 0700); err != nil {
		return err
	}

	configPath := filepath.Join(path, ConfigurationName)
	switch _, err := fs.Stat(configPath); {
	case os.IsNotExist(err):
		logger.Printf("writing %s", configPath)
		if err := afero.WriteFile(fs, configPath, defaultConfigData, 0600); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		logger.Printf("%s already exists, skipping", configPath)
	}

	return nil
}
