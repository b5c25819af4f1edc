package personality

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const (
	FileName = "ASSISTANT.md"
	Default  = "You are a helpful AI assistant for carbonN, an automation and integration platform. " +
		"You can help users research information, create workflows, and integrate with various services " +
		"like Google Calendar, Gmail, Microsoft Office, etc. When users ask you to perform actions like " +
		"creating calendar events or sending emails, acknowledge that you can help with that and provide " +
		"detailed information about what you found or what actions you would take."
)

// Load returns the system prompt. An explicit path must exist; otherwise
// ASSISTANT.md is searched upward from the working directory and Default is
// used when none is found.
func Load(path string) (string, error) {
	if strings.TrimSpace(path) != "" {
		return readPrompt(path)
	}
	prompt, err := ReadFromDisk()
	if errors.Is(err, os.ErrNotExist) {
		return Default, nil
	}
	if err != nil {
		return "", err
	}
	if prompt == "" {
		return Default, nil
	}
	return prompt, nil
}

func ReadFromDisk() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	path, err := findInParents(cwd, FileName)
	if err != nil {
		return "", err
	}
	return readPrompt(path)
}

func readPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func findInParents(startDir string, filename string) (string, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}
