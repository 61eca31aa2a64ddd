package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vulnverified/aegis/internal/engine"
)

// Format is a report rendering.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", &engine.ConfigError{Option: "output format", Value: s, Reason: "must be table, json or yaml"}
}

// Write renders report to w in format.
func Write(w io.Writer, report *engine.Report, format Format, noColor bool) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, report)
	case FormatYAML:
		return WriteYAML(w, report)
	case FormatTable, "":
		WriteTable(w, report, noColor)
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}

// WriteJSON writes the report as indented JSON to w.
func WriteJSON(w io.Writer, report *engine.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// WriteYAML writes the report as YAML to w.
func WriteYAML(w io.Writer, report *engine.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}
