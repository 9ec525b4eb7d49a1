package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a parameter file (JSON or YAML by extension), applies validation,
// and fails before any simulation step can run on a bad configuration.
func Load(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, err
	}

	var p Params
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Params{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return Params{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return Params{}, fmt.Errorf("unsupported parameter file extension: %s", path)
	}

	if err := p.Validate(); err != nil {
		return Params{}, fmt.Errorf("invalid parameters in %s: %w", path, err)
	}
	return p, nil
}
