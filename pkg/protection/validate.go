package protection

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/hashing"
)

// MaxPayloadSize bounds a single payload.
const MaxPayloadSize = 1 << 20

var denyList = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"script tag", regexp.MustCompile(`(?i)<\s*script`)},
	{"javascript url", regexp.MustCompile(`(?i)javascript\s*:`)},
	{"inline event handler", regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)},
	{"sql injection", regexp.MustCompile(`(?i)(\bunion\s+select\b|;\s*drop\s+table\b|'\s*or\s+'1'\s*=\s*'1)`)},
	{"path traversal", regexp.MustCompile(`\.\.[/\\]`)},
}

// queryOperator matches document-store operators used as object keys.
var queryOperator = regexp.MustCompile(`^\s*\$(where|ne|gt|gte|lt|lte|in|nin|regex|expr)\s*$`)

// validatePayload rejects payloads that are not JSON objects or that carry
// a known injection marker. It returns the canonical form on success.
//
// Markers are matched against decoded keys and string values, so JSON
// escapes such as \u003c cannot hide them.
func validatePayload(op string, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, op, "payload is empty")
	}
	if len(payload) > MaxPayloadSize {
		return nil, apperr.New(apperr.KindInvalidInput, op, "payload exceeds maximum size")
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, op, "payload is not valid JSON")
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, apperr.New(apperr.KindInvalidInput, op, "payload must be a JSON object")
	}
	if reason := scanValue(doc); reason != "" {
		return nil, apperr.New(apperr.KindInvalidInput, op, "payload rejected: "+reason)
	}
	canonical, err := hashing.Canonicalize(json.RawMessage(payload))
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, op, "payload is not valid JSON")
	}
	return canonical, nil
}

// scanValue walks a decoded document and names the first marker it finds.
func scanValue(v any) string {
	switch t := v.(type) {
	case string:
		return scanText(t)
	case map[string]any:
		for k, child := range t {
			if queryOperator.MatchString(k) {
				return "query operator"
			}
			if reason := scanText(k); reason != "" {
				return reason
			}
			if reason := scanValue(child); reason != "" {
				return reason
			}
		}
	case []any:
		for _, child := range t {
			if reason := scanValue(child); reason != "" {
				return reason
			}
		}
	}
	return ""
}

func scanText(s string) string {
	for _, d := range denyList {
		if d.pattern.MatchString(s) {
			return d.name
		}
	}
	return ""
}
