package calib

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Load reads trim data from disk. Missing files return neutral trim.
func Load(path string) (Calib, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Default(), err
	}
	return Normalize(c), nil
}

// Save writes trim data to disk, creating parent directories as needed.
func Save(path string, c Calib) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(Normalize(c), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
