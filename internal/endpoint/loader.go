package endpoint

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk layout of an endpoint seed file:
//
//	endpoints:
//	  - name: default_rag
//	    kind: rag
//	    fields:
//	      api_key: sk-...
//	      embedding_model: text-embedding-3-small
//	      chat_model: gpt-4o-mini
//	      index_path: ./indexes/handbook.json
type seedFile struct {
	Endpoints []seedEndpoint `yaml:"endpoints"`
}

type seedEndpoint struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Fields Fields `yaml:"fields"`
}

// LoadFile reads a YAML seed file, validates every endpoint in it and
// returns them in file order.
func LoadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read endpoint file %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes seed file contents. source is only used in error messages.
func Parse(data []byte, source string) ([]Record, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML for %s: %w", source, err)
	}

	seen := make(map[string]bool, len(file.Endpoints))
	records := make([]Record, 0, len(file.Endpoints))
	for i, e := range file.Endpoints {
		kind, err := ParseKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("endpoint #%d in %s: %w", i+1, source, err)
		}
		rec := Record{Name: e.Name, Kind: kind, Fields: e.Fields.Clone()}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("validation failed for endpoint #%d in %s: %w", i+1, source, err)
		}
		if seen[rec.Name] {
			return nil, fmt.Errorf("duplicate endpoint '%s' found in %s", rec.Name, source)
		}
		seen[rec.Name] = true
		records = append(records, rec)
	}

	if len(records) == 0 {
		slog.Warn("No endpoints were loaded.", "path", source)
	}
	return records, nil
}
