package audit

import (
	"encoding/json"
	"reflect"
	"regexp"
	"strings"
)

// Masking patterns, applied in fixed order. Each replacer receives the
// pattern's submatches for the matched text. Replacements contain no digit
// runs the later patterns could re-consume, which is what makes masking
// idempotent.
var maskPatterns = []struct {
	name    string
	re      *regexp.Regexp
	replace func(groups []string) string
}{
	{
		// National ID: 6 digits, optional separator, 7 digits. Fully redacted.
		name: "ssn",
		re:   regexp.MustCompile(`\b(\d{6})-?(\d{7})\b`),
		replace: func(_ []string) string {
			return "******-*******"
		},
	},
	{
		// Card number: four groups of 4. Keep the last group.
		name: "card",
		re:   regexp.MustCompile(`\b(\d{4})-?(\d{4})-?(\d{4})-?(\d{4})\b`),
		replace: func(groups []string) string {
			return "****-****-****-" + groups[4]
		},
	},
	{
		// Email: keep first character of the local part and the domain.
		name: "email",
		re:   regexp.MustCompile(`\b([a-zA-Z0-9._%+-]+)@([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})\b`),
		replace: func(groups []string) string {
			local := groups[1]
			return local[:1] + strings.Repeat("*", len(local)-1) + "@" + groups[2]
		},
	},
	{
		// Mobile phone: keep prefix and last group.
		name: "phone",
		re:   regexp.MustCompile(`\b(01[016789])-?(\d{3,4})-?(\d{4})\b`),
		replace: func(groups []string) string {
			return groups[1] + "-****-" + groups[3]
		},
	},
	{
		// Account number: redact middle groups, keep last 3 digits.
		name: "account",
		re:   regexp.MustCompile(`\b(\d{3})-(\d{2,6})-(\d{2,6})\b`),
		replace: func(groups []string) string {
			last := groups[3]
			keep := last
			if len(last) > 3 {
				keep = last[len(last)-3:]
			}
			stars := len(last) - len(keep)
			return groups[1] + "-" + strings.Repeat("*", len(groups[2])) + "-" + strings.Repeat("*", stars) + keep
		},
	},
}

// MaskString applies every pattern once, in order, over the text.
func MaskString(text string) string {
	if text == "" {
		return text
	}
	result := text
	for _, p := range maskPatterns {
		re := p.re
		replace := p.replace
		result = re.ReplaceAllStringFunc(result, func(match string) string {
			return replace(re.FindStringSubmatch(match))
		})
	}
	return result
}

// MaskValue walks maps and slices recursively, masking every string leaf.
// Non-string scalars pass through unchanged. Backends hand back concretely
// typed containers ([]map[string]any, []string, ...), so anything outside
// the decoded-JSON types is walked reflectively rather than passed through.
func MaskValue(v any) any {
	switch t := v.(type) {
	case string:
		return MaskString(t)
	case map[string]any:
		if t == nil {
			return t
		}
		masked := make(map[string]any, len(t))
		for k, val := range t {
			masked[k] = MaskValue(val)
		}
		return masked
	case []any:
		if t == nil {
			return t
		}
		masked := make([]any, len(t))
		for i, item := range t {
			masked[i] = MaskValue(item)
		}
		return masked
	default:
		return maskReflect(v)
	}
}

// maskReflect normalizes concretely typed containers into decoded-JSON form
// while masking their string leaves. []byte is left alone so it still
// serializes as base64.
func maskReflect(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return v
		}
		return MaskValue(rv.Elem().Interface())
	case reflect.String:
		return MaskString(rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return v
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		masked := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			masked[i] = MaskValue(rv.Index(i).Interface())
		}
		return masked
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return v
		}
		masked := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			masked[iter.Key().String()] = MaskValue(iter.Value().Interface())
		}
		return masked
	default:
		return v
	}
}

// MaskResponse masks an arbitrary response payload. A string that parses as
// JSON is masked structurally rather than as raw text.
func MaskResponse(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			switch parsed.(type) {
			case map[string]any, []any:
				return MaskValue(parsed)
			}
		}
		return MaskString(s)
	}
	return MaskValue(v)
}
