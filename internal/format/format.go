// Package format selects how CLI output and outlet files are encoded.
package format

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// DataFormat names an output encoding. FORMAT_LIST is the plain text
// listing each command prints itself.
type DataFormat string

const (
	FORMAT_LIST DataFormat = "list"
	FORMAT_JSON DataFormat = "json"
	FORMAT_YAML DataFormat = "yaml"
)

type codec struct {
	name      string
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

var codecs = map[DataFormat]codec{
	FORMAT_JSON: {
		name:      "JSON",
		marshal:   func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
		unmarshal: json.Unmarshal,
	},
	FORMAT_YAML: {
		name:      "YAML",
		marshal:   yaml.Marshal,
		unmarshal: yaml.Unmarshal,
	},
}

func (df DataFormat) String() string { return string(df) }

func (df DataFormat) Type() string { return "DataFormat" }

func (df *DataFormat) Set(v string) error {
	switch f := DataFormat(v); f {
	case FORMAT_LIST, FORMAT_JSON, FORMAT_YAML:
		*df = f
		return nil
	}
	return fmt.Errorf("must be one of %v", []DataFormat{FORMAT_LIST, FORMAT_JSON, FORMAT_YAML})
}

func lookup(df DataFormat) (codec, error) {
	c, ok := codecs[df]
	if !ok {
		return codec{}, fmt.Errorf("cannot encode data as %q", df)
	}
	return c, nil
}

// Marshal encodes data as indented JSON or YAML.
func Marshal(data any, df DataFormat) ([]byte, error) {
	c, err := lookup(df)
	if err != nil {
		return nil, err
	}
	b, err := c.marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", c.name, err)
	}
	return b, nil
}

func Unmarshal(data []byte, v any, df DataFormat) error {
	c, err := lookup(df)
	if err != nil {
		return err
	}
	if err := c.unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", c.name, err)
	}
	return nil
}

// DataFormatFromFileExt maps .json and .yaml/.yml (any case) to their
// format and everything else to fallback.
func DataFormatFromFileExt(path string, fallback DataFormat) DataFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FORMAT_JSON
	case ".yaml", ".yml":
		return FORMAT_YAML
	}
	return fallback
}

// UnmarshalFile decodes the file at path by its extension, YAML by default.
func UnmarshalFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Unmarshal(b, v, DataFormatFromFileExt(path, FORMAT_YAML))
}
