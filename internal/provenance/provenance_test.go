package provenance

import (
	"context"
	"testing"

	"github.com/harvestcore/harvest/internal/har"
)

func TestFindMatchesCookieExact(t *testing.T) {
	result, err := Find(context.Background(), nil, []string{"sid-123"}, map[string]string{"session": "sid-123"}, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(result.CookieDependencies) != 1 || result.CookieDependencies[0].Name != "session" {
		t.Fatalf("expected cookie dependency, got %+v", result)
	}
}

func TestFindMatchesSinglePriorResponse(t *testing.T) {
	login := &har.Request{
		URL:      "https://example.com/api/login",
		Response: &har.Response{BodyText: `{"token":"abc123token"}`, ContentType: "application/json"},
	}
	result, err := Find(context.Background(), nil, []string{"abc123token"}, nil, []*har.Request{login})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(result.RequestDependencies) != 1 || result.RequestDependencies[0].Request != login {
		t.Fatalf("expected single request dependency, got %+v", result)
	}
}

func TestFindSkipsJSAndHTMLCandidates(t *testing.T) {
	script := &har.Request{URL: "https://example.com/app.js", Response: &har.Response{BodyText: "abc123token"}}
	page := &har.Request{URL: "https://example.com/page", Response: &har.Response{BodyText: "abc123token", ContentType: "text/html"}}
	result, err := Find(context.Background(), nil, []string{"abc123token"}, nil, []*har.Request{script, page})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(result.NotFoundParts) != 1 {
		t.Fatalf("expected part to be not-found since only js/html candidates exist, got %+v", result)
	}
}

func TestFindUnmatchedBecomesNotFound(t *testing.T) {
	result, err := Find(context.Background(), nil, []string{"mystery-token"}, nil, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(result.NotFoundParts) != 1 || result.NotFoundParts[0] != "mystery-token" {
		t.Fatalf("expected not-found part, got %+v", result)
	}
}
