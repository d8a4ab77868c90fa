package audit

import (
	"encoding/json"
	"testing"
)

func TestMaskStringPatterns(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"national id with dash", "id 123456-1234567 on file", "id ******-******* on file"},
		{"national id without dash", "1234561234567", "******-*******"},
		{"card with dashes", "card 1234-5678-9012-3456 charged", "card ****-****-****-3456 charged"},
		{"card without dashes", "1234567890123456", "****-****-****-3456"},
		{"email", "contact kim@company.com please", "contact k**@company.com please"},
		{"email single char local", "a@b.co", "a@b.co"},
		{"phone with dashes", "call 010-1234-5678 now", "call 010-****-5678 now"},
		{"phone without dashes", "01012345678", "010-****-5678"},
		{"account", "acct 110-123-456789", "acct 110-***-***789"},
		{"account short tail", "110-12-34", "110-**-34"},
		{"no pii", "nothing sensitive here", "nothing sensitive here"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MaskString(tc.in); got != tc.want {
				t.Fatalf("MaskString(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMaskStringIdempotent(t *testing.T) {
	inputs := []string{
		"id 123456-1234567, card 1234-5678-9012-3456, kim@company.com, 010-1234-5678, 110-123-456789",
		"plain text",
		"nested kim@company.com and lee@corp.io",
	}
	for _, in := range inputs {
		once := MaskString(in)
		twice := MaskString(once)
		if once != twice {
			t.Fatalf("masking not idempotent:\n once: %q\ntwice: %q", once, twice)
		}
	}
}

func TestMaskValueRecursion(t *testing.T) {
	in := map[string]any{
		"email": "kim@company.com",
		"count": 2,
		"nested": map[string]any{
			"phone": "010-1234-5678",
		},
		"list": []any{
			"110-123-456789",
			42,
			map[string]any{"card": "1234-5678-9012-3456"},
		},
	}

	masked := MaskValue(in).(map[string]any)
	if masked["email"] != "k**@company.com" {
		t.Fatalf("email not masked: %v", masked["email"])
	}
	if masked["count"] != 2 {
		t.Fatalf("non-string value changed: %v", masked["count"])
	}
	nested := masked["nested"].(map[string]any)
	if nested["phone"] != "010-****-5678" {
		t.Fatalf("nested phone not masked: %v", nested["phone"])
	}
	list := masked["list"].([]any)
	if list[0] != "110-***-***789" {
		t.Fatalf("list account not masked: %v", list[0])
	}
	if list[1] != 42 {
		t.Fatalf("list int changed: %v", list[1])
	}
	inner := list[2].(map[string]any)
	if inner["card"] != "****-****-****-3456" {
		t.Fatalf("list card not masked: %v", inner["card"])
	}

	// The input must not be mutated.
	if in["email"] != "kim@company.com" {
		t.Fatal("MaskValue mutated its input")
	}
}

func TestMaskValueConcreteContainerTypes(t *testing.T) {
	// The shape a database backend returns: concretely typed slices, not
	// the []any a JSON decode would produce.
	data := map[string]any{
		"columns": []string{"email", "phone"},
		"rows": []map[string]any{
			{"email": "kim@company.com", "phone": "010-1234-5678"},
			{"email": "lee@corp.io", "phone": "011-987-6543"},
		},
		"row_count": 2,
	}

	masked := MaskValue(data).(map[string]any)

	rows := masked["rows"].([]any)
	first := rows[0].(map[string]any)
	if first["email"] != "k**@company.com" {
		t.Fatalf("row email not masked: %v", first["email"])
	}
	if first["phone"] != "010-****-5678" {
		t.Fatalf("row phone not masked: %v", first["phone"])
	}
	second := rows[1].(map[string]any)
	if second["email"] != "l**@corp.io" {
		t.Fatalf("row email not masked: %v", second["email"])
	}

	cols := masked["columns"].([]any)
	if cols[0] != "email" || cols[1] != "phone" {
		t.Fatalf("column names changed: %v", cols)
	}
	if masked["row_count"] != 2 {
		t.Fatalf("row_count changed: %v", masked["row_count"])
	}

	// The input containers must not be mutated.
	if data["rows"].([]map[string]any)[0]["email"] != "kim@company.com" {
		t.Fatal("MaskValue mutated its input")
	}
}

func TestMaskResponseQueryResultShape(t *testing.T) {
	response := map[string]any{
		"columns":   []string{"card"},
		"rows":      []map[string]any{{"card": "1234-5678-9012-3456"}},
		"row_count": 1,
	}

	masked := MaskResponse(response).(map[string]any)
	row := masked["rows"].([]any)[0].(map[string]any)
	if row["card"] != "****-****-****-3456" {
		t.Fatalf("card not masked through response path: %v", row["card"])
	}
}

func TestMaskResponseParsesJSONStrings(t *testing.T) {
	raw := `{"owner":"kim@company.com","rows":[{"phone":"010-1234-5678"}]}`
	masked := MaskResponse(raw)

	m, ok := masked.(map[string]any)
	if !ok {
		t.Fatalf("expected structural masking of JSON string, got %T", masked)
	}
	if m["owner"] != "k**@company.com" {
		t.Fatalf("owner not masked: %v", m["owner"])
	}
	rows := m["rows"].([]any)
	if rows[0].(map[string]any)["phone"] != "010-****-5678" {
		t.Fatalf("row phone not masked: %v", rows[0])
	}
}

func TestMaskResponseNonJSONString(t *testing.T) {
	if got := MaskResponse("reach me at kim@company.com"); got != "reach me at k**@company.com" {
		t.Fatalf("unexpected: %v", got)
	}
}

func TestMaskResponseNil(t *testing.T) {
	if got := MaskResponse(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestMaskResponseCleanPayloadUnchanged(t *testing.T) {
	in := map[string]any{
		"tables": []any{"users", "orders"},
		"count":  float64(2),
	}
	masked := MaskResponse(in)

	got, _ := json.Marshal(masked)
	want, _ := json.Marshal(in)
	if string(got) != string(want) {
		t.Fatalf("clean payload changed:\n got: %s\nwant: %s", got, want)
	}
}
