package debug

import "testing"

func TestTreeWriter(t *testing.T) {
	tw := NewTreeWriter()
	if tw.String() != "" {
		t.Error("Expected empty string from new TreeWriter")
	}

	tw.Line(0, "Plan (%d entries)", 2)
	tw.Line(1, "Entry[%d] id=%q", 1, "title_page")
	tw.TextBlock(2, "Label", "Title\tPage")
	tw.TextBlock(2, "Source", "")
	tw.Line(-1, "negative depth")

	want := "Plan (2 entries)\n" +
		"  Entry[1] id=\"title_page\"\n" +
		"    Label: \"Title\\tPage\"\n" +
		"    Source: \n" +
		"negative depth\n"
	if got := tw.String(); got != want {
		t.Errorf("String() =\n%s\nwant\n%s", got, want)
	}
}

func TestEncodeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"plain", `"plain"`},
		{"line\nbreak", `"line\nbreak"`},
		{"quote \"x\"", `"quote \"x\""`},
		{"\x01", `"\x01"`},
	}
	for _, tt := range tests {
		if got := encodeText(tt.in); got != tt.want {
			t.Errorf("encodeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
