package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Payload is free-form notification metadata kept as a JSON object column.
type Payload map[string]any

func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (p *Payload) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = Payload{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into Payload", src)
	}
	out := Payload{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	*p = out
	return nil
}

// StringMap flattens the payload for push gateways that only carry string values.
func (p Payload) StringMap() map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		switch val := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = val
		default:
			if raw, err := json.Marshal(val); err == nil {
				out[k] = string(raw)
			} else {
				out[k] = fmt.Sprint(val)
			}
		}
	}
	return out
}
