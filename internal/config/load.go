package config

import (
	"fmt"
	"os"
)

// LoadGoals reads and validates the goals document at path.
func LoadGoals(path string) (*Goals, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read goals config: %w", err)
	}
	return ParseAndValidateGoals(data, path)
}

// LoadTemplates reads and validates the templates document at path.
// A missing file falls back to the built-in recipes.
func LoadTemplates(path string) (*Templates, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultTemplates(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read templates config: %w", err)
	}
	return ParseAndValidateTemplates(data, path)
}
