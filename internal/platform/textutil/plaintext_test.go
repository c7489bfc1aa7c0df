package textutil

import "testing"

func TestPlainText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "  Bold & bright  ", want: "Bold & bright"},
		{name: "markup", input: "<b>Modern</b> <script>alert(1)</script>brand", want: "Modern brand"},
		{name: "empty", input: "   ", want: ""},
		{name: "quotes", input: `We're "friendly"`, want: `We're "friendly"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.input); got != tt.want {
				t.Fatalf("expected %q got %q", tt.want, got)
			}
		})
	}
}
