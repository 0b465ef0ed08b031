package metadata

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

var payloadJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// NormalizePayload makes a payload safe to persist as JSON. Invalid UTF-8 is
// replaced with U+FFFD, values JSON has no shape for are stringified, and the
// result is round-tripped so stored and returned trees are identical.
func NormalizePayload(payload map[string]any) (map[string]any, error) {
	cleaned := make(map[string]any, len(payload))
	for _, k := range sortedKeys(payload) {
		putCleaned(cleaned, k, normalizeValue(payload[k]))
	}

	data, err := payloadJSON.Marshal(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	var out map[string]any
	if err := payloadJSON.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func normalizeValue(v any) any {
	switch vt := v.(type) {
	case nil, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return vt
	case string:
		return validUTF8(vt)
	case []byte:
		return validUTF8(string(vt))
	case map[string]any:
		m := make(map[string]any, len(vt))
		for _, k := range sortedKeys(vt) {
			putCleaned(m, k, normalizeValue(vt[k]))
		}
		return m
	case []any:
		s := make([]any, len(vt))
		for i, e := range vt {
			s[i] = normalizeValue(e)
		}
		return s
	case []string:
		s := make([]any, len(vt))
		for i, e := range vt {
			s[i] = validUTF8(e)
		}
		return s
	case map[string]string:
		m := make(map[string]any, len(vt))
		for _, k := range sortedKeys(vt) {
			putCleaned(m, k, validUTF8(vt[k]))
		}
		return m
	case fmt.Stringer:
		return validUTF8(vt.String())
	default:
		return validUTF8(fmt.Sprint(vt))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// putCleaned stores v under the cleaned form of key. When several keys clean
// to the same string, a key that was already valid wins, otherwise the first
// in sorted order.
func putCleaned(m map[string]any, key string, v any) {
	ck := validUTF8(key)
	if _, taken := m[ck]; taken && ck != key {
		return
	}
	m[ck] = v
}

func validUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

// NormalizeStoredEntry upgrades a payload entry read back from storage.
// Older records kept some entries as raw strings; a string holding a JSON
// object or array becomes that tree, anything else is wrapped as {"raw": s}.
func NormalizeStoredEntry(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var tree any
		if err := payloadJSON.UnmarshalFromString(trimmed, &tree); err == nil {
			return tree
		}
	}
	return map[string]any{"raw": s}
}

// NormalizeStoredPayload applies NormalizeStoredEntry to every entry in place.
func NormalizeStoredPayload(payload map[string]any) map[string]any {
	for k, v := range payload {
		payload[k] = NormalizeStoredEntry(v)
	}
	return payload
}
