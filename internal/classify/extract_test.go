package classify

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "clean object",
			input: `{"intent":"cancel_order"}`,
			want:  `{"intent":"cancel_order"}`,
		},
		{
			name:  "markdown wrapped",
			input: "```json\n{\"intent\":\"cancel_order\"}\n```",
			want:  `{"intent":"cancel_order"}`,
		},
		{
			name:  "prose around object",
			input: `Here you go: {"intent":"cancel_order"} hope that helps`,
			want:  `{"intent":"cancel_order"}`,
		},
		{
			name:  "nested braces",
			input: `x {"a":{"b":1},"c":"d"} y`,
			want:  `{"a":{"b":1},"c":"d"}`,
		},
		{
			name:  "braces inside string values",
			input: `{"rationale":"customer wrote {urgent}","intent":"cancel_order"}`,
			want:  `{"rationale":"customer wrote {urgent}","intent":"cancel_order"}`,
		},
		{
			name:  "no object",
			input: "just words",
			want:  "",
		},
		{
			name:  "unbalanced",
			input: `{"intent":"cancel_order"`,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.input); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCoerceJSONRejectsNonObjects(t *testing.T) {
	for _, input := range []string{"", "   ", "null", `["a"]`, `"cancel"`} {
		if _, err := coerceJSON(input); err == nil {
			t.Errorf("coerceJSON(%q) should fail", input)
		}
	}
}

func TestCoerceJSONNullOrderID(t *testing.T) {
	cls, err := coerceJSON(`{"intent":"cancel_order","order_id":null,"is_subscription_related":true,"urgency":"high","rationale":"r"}`)
	if err != nil {
		t.Fatalf("coerceJSON: %v", err)
	}
	if cls.OrderID != "" {
		t.Errorf("null order_id should map to empty string, got %q", cls.OrderID)
	}
	if !cls.IsSubscriptionRelated {
		t.Error("is_subscription_related should be true")
	}
}
