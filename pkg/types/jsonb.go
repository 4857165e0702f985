package types

import (
	"encoding/json"
	"fmt"
)

// scanJSON decodes a json/jsonb column into dest.
func scanJSON(label string, value any, dest any) error {
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("%s: unsupported scan type %T", label, value)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	return nil
}
