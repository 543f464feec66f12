package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

const configTOMLFileName = "config.toml"

type OpenAIFileConfig struct {
	Endpoint string `toml:"endpoint,omitempty"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

// FileConfig is the subset of settings persisted to config.toml. Anything
// unset falls back to the built-in defaults or env overrides.
type FileConfig struct {
	Host         string           `toml:"host,omitempty"`
	HTTPPort     int              `toml:"http_port,omitempty"`
	WSPort       int              `toml:"ws_port,omitempty"`
	LogLevel     string           `toml:"log_level,omitempty"`
	PromptPrefix string           `toml:"prompt_prefix,omitempty"`
	OpenAI       OpenAIFileConfig `toml:"openai,omitempty"`
}

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// LoadOrInit reads config.toml, creating an empty one on first run so the
// operator has a file to edit.
func (s *Store) LoadOrInit() (FileConfig, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return FileConfig{}, err
	}

	path := filepath.Join(s.dir, configTOMLFileName)
	if b, err := os.ReadFile(path); err == nil {
		var fc FileConfig
		if err := toml.Unmarshal(b, &fc); err != nil {
			return FileConfig{}, err
		}
		return fc, nil
	} else if !os.IsNotExist(err) {
		return FileConfig{}, err
	}

	fc := FileConfig{}
	if err := writeTOMLAtomically(path, fc); err != nil {
		return FileConfig{}, err
	}
	return fc, nil
}

func (s *Store) Save(fc FileConfig) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeTOMLAtomically(filepath.Join(s.dir, configTOMLFileName), fc)
}

// Dir returns the snapai config directory, honoring SNAPAI_CONFIG_DIR for
// tests and non-standard setups.
func Dir() (string, error) {
	if dir := os.Getenv("SNAPAI_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "snapai"), nil
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
