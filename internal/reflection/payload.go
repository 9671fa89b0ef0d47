package reflection

import "encoding/json"

// PayloadKey is the payload field holding the reflection map.
const PayloadKey = "ersp"

// Map renders r for storage in a record payload.
func (r Reflection) Map() map[string]any {
	return map[string]any{
		"event":          r.Event,
		"interpretation": r.Interpretation,
		"lesson":         r.Lesson,
		"if_then":        r.Rule,
	}
}

// FromMap reads a stored reflection. Older records use "rule" instead of
// "if_then". Non-string values are ignored.
func FromMap(m map[string]any) Reflection {
	if m == nil {
		return Reflection{}
	}
	r := Reflection{
		Event:          str(m["event"]),
		Interpretation: str(m["interpretation"]),
		Lesson:         str(m["lesson"]),
		Rule:           str(m["if_then"]),
	}
	if r.Rule == "" {
		r.Rule = str(m["rule"])
	}
	return r
}

// UnmarshalJSON accepts the legacy "rule" key alongside "if_then".
func (r *Reflection) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*r = FromMap(m)
	return nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
