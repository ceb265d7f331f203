package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source describes one configured feed.
type Source struct {
	Name         string `yaml:"name"`
	Kind         string `yaml:"kind"`
	URL          string `yaml:"url"`
	RequireMedia bool   `yaml:"require_media"`
	MinScore     int    `yaml:"min_score"`
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the feed source list from a YAML file.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}
	return ParseSources(data)
}

// ParseSources decodes and validates YAML source definitions.
func ParseSources(data []byte) ([]Source, error) {
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sources YAML: %w", err)
	}
	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("no sources defined")
	}

	seen := make(map[string]struct{}, len(file.Sources))
	for i := range file.Sources {
		src := &file.Sources[i]
		src.Name = strings.TrimSpace(src.Name)
		src.Kind = strings.ToLower(strings.TrimSpace(src.Kind))
		src.URL = strings.TrimSpace(src.URL)

		if src.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if _, dup := seen[src.Name]; dup {
			return nil, fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = struct{}{}

		switch src.Kind {
		case "rss", "reddit":
		default:
			return nil, fmt.Errorf("source %q: unsupported kind %q", src.Name, src.Kind)
		}
		if src.URL == "" {
			return nil, fmt.Errorf("source %q: url is required", src.Name)
		}
	}

	return file.Sources, nil
}
