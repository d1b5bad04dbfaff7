package request

import (
	"strings"
	"testing"

	"github.com/harvestcore/harvest/internal/har"
)

func TestRenderDeterministicHeaderOrder(t *testing.T) {
	req := &har.Request{
		Method:      "POST",
		URL:         "https://example.com/api/login",
		Headers:     map[string]string{"Content-Type": "application/json", "Authorization": "Bearer xyz"},
		HeaderOrder: []string{"Content-Type", "Authorization"},
		Body:        &har.Body{JSON: map[string]any{"user": "a"}},
	}
	out1 := Render(req)
	out2 := Render(req)
	if out1 != out2 {
		t.Fatal("Render must be deterministic")
	}
	if strings.Index(out1, "Authorization") > strings.Index(out1, "Content-Type") {
		t.Fatal("headers should be alphabetically ordered (Authorization before Content-Type)")
	}
}

func TestRoundTripPreservesAuthFields(t *testing.T) {
	req := &har.Request{
		Method:      "GET",
		URL:         "https://example.com/api/search?q=x",
		Headers:     map[string]string{"Authorization": "Bearer abc"},
		HeaderOrder: []string{"Authorization"},
	}
	rendered := Render(req)
	parsed, err := Parse(rendered)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Method != "GET" {
		t.Fatalf("method mismatch: %s", parsed.Method)
	}
	if v, ok := parsed.HeaderValue("Authorization"); !ok || v != "Bearer abc" {
		t.Fatalf("authorization header lost in round-trip: %q", v)
	}
}
