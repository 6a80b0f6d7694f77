package job

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Text is a free-form scalar field. Browser forms send the same field as a
// string in one revision and as a number in the next, so decoding accepts any
// JSON scalar and keeps its literal text. Objects and arrays decode to empty.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*t = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case 'n', '{', '[':
		*t = ""
	default:
		*t = Text(data)
	}
	return nil
}

// String returns the value with surrounding whitespace removed. The literal
// strings "undefined" and "null", which browser forms produce by stringifying
// missing values, read as empty.
func (t Text) String() string {
	s := strings.TrimSpace(string(t))
	if s == "undefined" || s == "null" {
		return ""
	}
	return s
}

// Or returns the trimmed value, or fallback when the value is blank.
func (t Text) Or(fallback string) string {
	if s := t.String(); s != "" {
		return s
	}
	return fallback
}

// Blank reports whether the value is empty after trimming.
func (t Text) Blank() bool {
	return t.String() == ""
}

func allBlank(fields ...Text) bool {
	for _, f := range fields {
		if !f.Blank() {
			return false
		}
	}
	return true
}
