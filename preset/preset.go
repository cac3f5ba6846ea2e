// Package preset loads service definitions from configuration files,
// so a test harness or the skiff CLI can provision "the postgres from
// skiff.jsonc" without repeating image names and readiness markers in
// code.
//
// Two formats are supported, chosen by file extension: JSON with
// comments (.json/.jsonc) and YAML (.yaml/.yml).
package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/skiff"
	"github.com/mmr-tortoise/skiff/dsn"
	"github.com/mmr-tortoise/skiff/port"
)

// Preset is one named service definition as written in a preset file.
type Preset struct {
	Image         string            `json:"image" yaml:"image"`
	Env           map[string]string `json:"env" yaml:"env"`
	Port          int               `json:"port" yaml:"port"`
	PreferredHost int               `json:"preferredHostPort" yaml:"preferredHostPort"`
	ReadyLog      string            `json:"readyLog" yaml:"readyLog"`
	Scheme        string            `json:"scheme" yaml:"scheme"`
	User          string            `json:"user" yaml:"user"`
	Password      string            `json:"password" yaml:"password"`
	Database      string            `json:"database" yaml:"database"`
	Options       map[string]string `json:"options" yaml:"options"`
	AllowedOpts   []string          `json:"allowedOptions" yaml:"allowedOptions"`
}

// file is the top-level preset document: a map of service name to
// definition under a "services" key.
type file struct {
	Services map[string]Preset `json:"services" yaml:"services"`
}

// Load reads and validates a preset file. The format follows the file
// extension; anything else is rejected.
func Load(path string) (map[string]Preset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading preset file: %w", err)
	}

	var doc file
	switch ext := filepath.Ext(path); ext {
	case ".json", ".jsonc":
		// jsonc.ToJSON strips comments and trailing commas, leaving
		// strict JSON for the standard decoder.
		if err := json.Unmarshal(jsonc.ToJSON(raw), &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported preset file extension %q (want .json, .jsonc, .yaml, or .yml)", ext)
	}

	if len(doc.Services) == 0 {
		return nil, fmt.Errorf("preset file %s defines no services", path)
	}
	for name, p := range doc.Services {
		if err := p.validate(name); err != nil {
			return nil, err
		}
	}
	return doc.Services, nil
}

// validate rejects definitions that could not possibly provision.
func (p Preset) validate(name string) error {
	if p.Image == "" {
		return fmt.Errorf("preset %q: image is required", name)
	}
	if p.ReadyLog == "" {
		return fmt.Errorf("preset %q: readyLog is required", name)
	}
	if p.Port <= 0 || p.Port > port.MaxPort {
		return fmt.Errorf("preset %q: port %d out of range", name, p.Port)
	}
	return nil
}

// Spec converts a named preset into the ServiceSpec the Runner
// consumes.
func (p Preset) Spec(name string) skiff.ServiceSpec {
	env := make([]string, 0, len(p.Env))
	for k, v := range p.Env {
		env = append(env, k+"="+v)
	}

	return skiff.ServiceSpec{
		Name:              name,
		Image:             p.Image,
		Env:               env,
		ContainerPort:     p.Port,
		PreferredHostPort: p.PreferredHost,
		ReadyMarker:       p.ReadyLog,
		URL: dsn.URL{
			Scheme:   p.Scheme,
			User:     p.User,
			Password: p.Password,
			Database: p.Database,
			Options:  p.Options,
		},
		AllowedURLOptions: p.AllowedOpts,
	}
}
