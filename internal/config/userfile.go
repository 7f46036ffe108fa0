package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	configDirName  = "jobcard"
	configFileName = "config.yaml"
)

// UserFile represents the user's local configuration stored in ~/.config/jobcard/config.yaml
type UserFile struct {
	APIURL      string `yaml:"api_url,omitempty"`
	Store       string `yaml:"store,omitempty"`
	StorePath   string `yaml:"store_path,omitempty"`
	HTTPTimeout string `yaml:"http_timeout,omitempty"`
	ExpiryCheck string `yaml:"expiry_check,omitempty"`
	LogLevel    string `yaml:"log_level,omitempty"`
}

// Dir returns the per-user configuration directory
func Dir() (string, error) {
	if dir := os.Getenv("JOBCARD_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", configDirName), nil
}

// UserFilePath returns the path to the user config file
func UserFilePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LoadUserFile reads the user configuration file
func LoadUserFile() (*UserFile, error) {
	path, err := UserFilePath()
	if err != nil {
		return nil, err
	}
	return readUserFile(path)
}

func readUserFile(path string) (*UserFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// If config doesn't exist, return empty config
		return &UserFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user config file: %w", err)
	}

	var f UserFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse user config file: %w", err)
	}

	return &f, nil
}

// SaveUserFile writes the user configuration to a file
func SaveUserFile(f *UserFile) error {
	path, err := UserFilePath()
	if err != nil {
		return err
	}
	return writeUserFile(path, f)
}

func writeUserFile(path string, f *UserFile) error {
	// Create config directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal user config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write user config file: %w", err)
	}

	return nil
}
