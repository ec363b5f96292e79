package format

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Formatter abstracts output formatting.
type Formatter interface {
	Write(w io.Writer, payload any) error
}

// JSONFormatter writes JSON output.
type JSONFormatter struct{}

// Write writes JSON payload to a writer.
func (f JSONFormatter) Write(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// YAMLFormatter writes YAML output. Payloads go through their JSON encoding
// first so field names and key order match the API.
type YAMLFormatter struct{}

// Write writes YAML payload to a writer.
func (f YAMLFormatter) Write(w io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("convert to yaml: %w", err)
	}
	blockStyle(&doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle drops the flow and quoting styles inherited from JSON.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		blockStyle(child)
	}
}

// ForFlags picks a formatter from the CLI output flags. It returns nil when
// neither is set and human-readable output should be used.
func ForFlags(jsonOutput, yamlOutput bool) (Formatter, error) {
	switch {
	case jsonOutput && yamlOutput:
		return nil, fmt.Errorf("--json and --yaml are mutually exclusive")
	case jsonOutput:
		return JSONFormatter{}, nil
	case yamlOutput:
		return YAMLFormatter{}, nil
	default:
		return nil, nil
	}
}
