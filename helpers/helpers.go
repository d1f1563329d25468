package helpers

import "encoding/json"

// ToJsonString renders a value as a single JSON line, for log-style output.
func ToJsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// ToPrettyJsonString renders a value as indented JSON for CLI output.
func ToPrettyJsonString(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}
