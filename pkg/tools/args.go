package tools

import (
	"encoding/json"
	"fmt"
)

// DecodeArgs converts a raw tool-call argument map into a typed struct via a
// JSON round trip. Unknown keys are ignored; the model occasionally invents
// extras and they must not fail the call.
func DecodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode tool args: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode tool args: %w", err)
	}
	return nil
}

// StringArg extracts a required string argument from a raw map. Used by the
// few call sites that take a single parameter and skip a struct.
func StringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}
