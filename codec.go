package formz

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Codec encodes persisted form values for a Store. Implement it to persist
// in another format.
type Codec interface {
	// Marshal serializes v.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes data into v.
	Unmarshal(data []byte, v any) error

	// ContentType names the encoding for logs and store metadata.
	ContentType() string
}

// JSONCodec persists values as JSON. It is the Service default.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) ContentType() string                { return "application/json" }

// YAMLCodec persists values as YAML.
//
// Nested mappings decode as map[string]any, matching JSONCodec, so values
// read back compare equal across codecs.
type YAMLCodec struct{}

func (YAMLCodec) Marshal(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

func (YAMLCodec) Unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

func (YAMLCodec) ContentType() string {
	return "application/x-yaml"
}

var (
	_ Codec = JSONCodec{}
	_ Codec = YAMLCodec{}
)
