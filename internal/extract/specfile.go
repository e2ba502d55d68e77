package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// SpecSet is a collection of named specs, as stored in a spec file:
//
//	top:
//	  - [anum, [summary, 0, 0], 'A\d{8}', null]
//	intake:
//	  - [intake_date, [0], '.+', datetime]
type SpecSet map[string]Spec

// DecodeSpecSet decodes a spec file's contents, `format` is "yaml" or "json5".
func DecodeSpecSet(contents []byte, format string) (SpecSet, error) {
	var raw map[string][][]any
	var err error
	switch format {
	case "yaml", "yml":
		err = yaml.Unmarshal(contents, &raw)
	case "json5", "json":
		err = json5.Unmarshal(contents, &raw)
	default:
		return nil, fmt.Errorf("unsupported spec format %q", format)
	}
	if err != nil {
		return nil, err
	}

	out := make(SpecSet, len(raw))
	for name, rules := range raw {
		spec := make(Spec, len(rules))
		for i, r := range rules {
			spec[i] = Rule(r)
		}
		out[name] = spec
	}
	return out, nil
}

// LoadSpecSet reads a spec file, the format is picked from the extension.
func LoadSpecSet(path string) (SpecSet, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	set, err := DecodeSpecSet(contents, format)
	if err != nil {
		return nil, fmt.Errorf("spec file %s: %w", path, err)
	}
	return set, nil
}
