package feeds

import (
	"strings"
	"testing"
)

func TestRenderDescriptionSanitizes(t *testing.T) {
	md := renderDescription(`<p>nice <strong>place</strong></p><script>alert(1)</script>`)
	if strings.Contains(md, "script") || strings.Contains(md, "alert") {
		t.Fatalf("script survived sanitization: %q", md)
	}
	if !strings.Contains(md, "**place**") {
		t.Fatalf("markdown conversion lost emphasis: %q", md)
	}
}

func TestRenderDescriptionPlainText(t *testing.T) {
	md := renderDescription("just text, no markup")
	if !strings.Contains(md, "just text") {
		t.Fatalf("plain text mangled: %q", md)
	}
}
