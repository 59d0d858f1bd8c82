package hostcall

import "encoding/json"

// ParseSecretExistsReply accepts the flexible reply shapes the secret-exists
// host call may come back as: a bare boolean, a bare string (non-empty means
// present), or an object carrying {"exists": bool}.
func ParseSecretExistsReply(raw string) (exists bool, ok bool) {
	var b bool
	if err := json.Unmarshal([]byte(raw), &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return s != "", true
	}
	var obj struct {
		Exists bool `json:"exists"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj.Exists, true
	}
	return false, false
}

// ParseSecretValueReply accepts the flexible reply shapes the
// secret-resolve host call may come back as: a bare string, or an object
// carrying {"value": string}. An empty string value is treated as absent.
func ParseSecretValueReply(raw string) (value string, ok bool) {
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return s, s != ""
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj.Value, obj.Value != ""
	}
	return "", false
}
