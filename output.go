package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type printer struct {
	out    io.Writer
	format string
}

func newPrinter(out io.Writer, format string) (*printer, error) {
	switch format {
	case formatText, formatJSON, formatYAML:
		return &printer{out: out, format: format}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q: must be one of text, json or yaml", format)
	}
}

// Print writes v in the printer's format.
func (p *printer) Print(v any) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)

	case formatYAML:
		// round trip through JSON so the JSON field names are used and raw
		// payloads are expanded
		generic, err := toGeneric(v)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()

	default:
		generic, err := toGeneric(v)
		if err != nil {
			return err
		}
		_, err = io.WriteString(p.out, renderText(generic))
		return err
	}
}

func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("could not encode output: %w", err)
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("could not encode output: %w", err)
	}
	return generic, nil
}

// renderText lays out top-level fields as "Label: value" lines. Strings are
// printed as-is so that documents and tokens can be piped; nested values are
// printed as compact JSON.
func renderText(v any) string {
	switch value := v.(type) {
	case nil:
		return ""

	case string:
		if strings.HasSuffix(value, "\n") {
			return value
		}
		return value + "\n"

	case map[string]any:
		var b strings.Builder
		for _, key := range slices.Sorted(maps.Keys(value)) {
			fmt.Fprintf(&b, "%s: %s\n", label(key), inline(value[key]))
		}
		return b.String()

	case []any:
		var b strings.Builder
		for _, item := range value {
			fmt.Fprintln(&b, inline(item))
		}
		return b.String()

	default:
		return inline(value) + "\n"
	}
}

func inline(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// label turns a field name into a heading: "logged_in" becomes "Logged In".
// Identifiers containing dots, such as plugin ids, are kept.
func label(key string) string {
	if strings.Contains(key, ".") {
		return key
	}
	// a Caser keeps state, so one is made per call
	return cases.Title(language.English).String(strings.ReplaceAll(key, "_", " "))
}
