package extractor

import (
	"encoding/json"
	"strconv"
	"strings"
)

// stripFences removes a markdown code fence around a JSON payload. Vision
// models wrap responses in ```json blocks despite instructions not to.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the opening fence line
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if first == "json" || first == "JSON" || first == "" {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// flexibleString converts a raw JSON value to a string, tolerating models
// that return numbers where strings were asked for. Returns "" for null.
func flexibleString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}

	return strings.Trim(string(raw), `"`)
}

// flexibleFloat converts a raw JSON value to a float, tolerating quoted
// numbers, thousands separators and decimal commas ("1.234,56").
func flexibleFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "m2")
	s = strings.TrimSuffix(s, "m²")
	s = strings.TrimSpace(s)

	if strings.Contains(s, ",") {
		// Spanish numeric format: dots group thousands, comma is decimal
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// normalizeReference strips whitespace and uppercases a cadastral reference.
// Validation against the canonical form happens in the caller.
func normalizeReference(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
