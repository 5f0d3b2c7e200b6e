package tree

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// WriteDocument writes a composition root to a YAML file.
func WriteDocument(root *Root, path string) error {
	data, err := yaml.Marshal(root)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ReadDocument reads a composition root from a YAML or JSON file.
func ReadDocument(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var root Root
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &root); err != nil {
			return nil, err
		}
		return &root, nil
	}

	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	return &root, nil
}

// WriteJSON writes the renderer-facing JSON form of a composition root.
func WriteJSON(root *Root, path string) error {
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
