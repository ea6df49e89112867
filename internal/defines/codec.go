package defines

import (
	"encoding/json"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// wireEntry is one key/value pair on the wire. cty/json needs the type
// alongside the value to decode back into a structurally-equal cty.Value,
// so each entry carries its own implied type rather than relying on a
// single shared schema.
type wireEntry struct {
	Key   string          `json:"key"`
	Type  json.RawMessage `json:"type"`
	Value json.RawMessage `json:"value"`
}

// EncodeExports serializes an export snapshot for transfer over a child
// process's stdin, using cty/json so nested lists/sets/maps round-trip
// exactly (Testable Property 7).
func EncodeExports(values map[string]cty.Value) ([]byte, error) {
	entries := make([]wireEntry, 0, len(values))
	for k, v := range values {
		typeJSON, err := ctyjson.MarshalType(v.Type())
		if err != nil {
			return nil, fmt.Errorf("defines: marshal type for %q: %w", k, err)
		}
		valJSON, err := ctyjson.Marshal(v, v.Type())
		if err != nil {
			return nil, fmt.Errorf("defines: marshal value for %q: %w", k, err)
		}
		entries = append(entries, wireEntry{Key: k, Type: typeJSON, Value: valJSON})
	}
	return json.Marshal(entries)
}

// DecodeExports is the inverse of EncodeExports.
func DecodeExports(data []byte) (map[string]cty.Value, error) {
	var entries []wireEntry
	if len(data) == 0 {
		return map[string]cty.Value{}, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("defines: decode export stream: %w", err)
	}
	out := make(map[string]cty.Value, len(entries))
	for _, e := range entries {
		ty, err := ctyjson.UnmarshalType(e.Type)
		if err != nil {
			return nil, fmt.Errorf("defines: unmarshal type for %q: %w", e.Key, err)
		}
		val, err := ctyjson.Unmarshal(e.Value, ty)
		if err != nil {
			return nil, fmt.Errorf("defines: unmarshal value for %q: %w", e.Key, err)
		}
		out[e.Key] = val
	}
	return out, nil
}
