package types

import (
	"database/sql/driver"
	"encoding/json"
)

// StringList persists an ordered list of strings as a json array.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	buf, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	decoded := []string{}
	if err := scanJSON("string list", value, &decoded); err != nil {
		return err
	}
	*l = decoded
	return nil
}

// Append adds values that are not blank, keeping the existing order.
func (l StringList) Append(values ...string) StringList {
	out := make(StringList, 0, len(l)+len(values))
	out = append(out, l...)
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
