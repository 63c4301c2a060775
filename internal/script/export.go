package script

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Exporter writes a script to an output stream in one format.
type Exporter interface {
	Export(s *Script, w io.Writer) error
	Extension() string
}

// NewExporter returns the exporter for a format name.
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "json":
		return jsonExporter{}, nil
	case "yaml", "yml":
		return yamlExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s (supported: json, yaml)", format)
	}
}

type jsonExporter struct{}

func (jsonExporter) Export(s *Script, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func (jsonExporter) Extension() string { return "json" }

type yamlExporter struct{}

func (yamlExporter) Export(s *Script, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()
	return enc.Encode(s)
}

func (yamlExporter) Extension() string { return "yaml" }
