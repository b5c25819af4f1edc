package assistant

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type rulesFile struct {
	Rules []Rule `toml:"rule" yaml:"rules"`
}

// LoadRules reads classifier rules from a .toml or .yaml file.
func LoadRules(path string) ([]Rule, error) {
	var file rulesFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return nil, fmt.Errorf("decode rules %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("decode rules %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported rules file %s", path)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s defines no rules", path)
	}
	return file.Rules, nil
}

// NewClassifierFromFile falls back to DefaultRules when path is empty.
func NewClassifierFromFile(path string) (*KeywordClassifier, error) {
	if strings.TrimSpace(path) == "" {
		return NewKeywordClassifier(DefaultRules())
	}
	rules, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	return NewKeywordClassifier(rules)
}
