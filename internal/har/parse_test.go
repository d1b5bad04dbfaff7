package har

import "testing"

const sampleHAR = `{
  "log": {
    "entries": [
      {
        "startedDateTime": "2024-01-01T00:00:00Z",
        "request": {
          "method": "POST",
          "url": "https://example.com/api/login",
          "headers": [
            {"name": "Content-Type", "value": "application/json"},
            {"name": "X-Datadog-Trace-Id", "value": "123"}
          ],
          "postData": {"mimeType": "application/json", "text": "{\"user\":\"a\"}"}
        },
        "response": {
          "status": 200,
          "statusText": "OK",
          "headers": [{"name": "Content-Type", "value": "application/json"}],
          "content": {"mimeType": "application/json", "text": "{\"token\":\"abc123token\"}"}
        }
      },
      {
        "startedDateTime": "2024-01-01T00:00:01Z",
        "request": {
          "method": "GET",
          "url": "https://www.google-analytics.com/collect",
          "headers": []
        },
        "response": {"status": 200, "headers": [], "content": {}}
      },
      {
        "startedDateTime": "2024-01-01T00:00:02Z",
        "request": {
          "method": "OPTIONS",
          "url": "https://example.com/api/search",
          "headers": []
        },
        "response": {"status": 204, "headers": [], "content": {}}
      },
      {
        "startedDateTime": "2024-01-01T00:00:03Z",
        "request": {
          "method": "GET",
          "url": "https://example.com/api/search?q=x",
          "headers": [{"name": "Authorization", "value": "Bearer abc123token"}]
        },
        "response": {
          "status": 200,
          "headers": [{"name": "Content-Type", "value": "application/json"}],
          "content": {"mimeType": "application/json", "text": "{\"results\":[]}"}
        }
      }
    ]
  }
}`

func TestParseFiltersAnalyticsAndPreflight(t *testing.T) {
	p, err := Parse([]byte(sampleHAR), Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Requests) != 2 {
		t.Fatalf("expected 2 relevant requests, got %d", len(p.Requests))
	}
	for _, r := range p.Requests {
		if r.URL == "https://www.google-analytics.com/collect" {
			t.Fatalf("analytics request was not filtered")
		}
		if r.Method == "OPTIONS" {
			t.Fatalf("preflight request was not filtered")
		}
	}
}

func TestParsePreservesAuthHeaderDespiteDenylist(t *testing.T) {
	p, err := Parse([]byte(sampleHAR), Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var login *Request
	for _, r := range p.Requests {
		if r.URL == "https://example.com/api/login" {
			login = r
		}
	}
	if login == nil {
		t.Fatal("login request missing")
	}
	if _, ok := login.HeaderValue("X-Datadog-Trace-Id"); ok {
		t.Fatal("tracking header should have been dropped")
	}
	if _, ok := login.HeaderValue("Content-Type"); !ok {
		t.Fatal("content-type header should survive")
	}
}

func TestParseQualityAndAuthAnalysis(t *testing.T) {
	p, err := Parse([]byte(sampleHAR), Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !p.Report.Auth.HasAuthHeaders {
		t.Fatal("expected auth headers detected")
	}
	if !p.Report.Auth.HasTokens {
		t.Fatal("expected token detected")
	}
	if p.Report.Quality == QualityEmpty {
		t.Fatal("quality should not be empty")
	}
}

func TestParseMissingLogEntriesFails(t *testing.T) {
	_, err := Parse([]byte(`{"log":{}}`), Options{})
	if err == nil {
		t.Fatal("expected error for missing log.entries")
	}
}

func TestParseMalformedJSONBodyDegradesToText(t *testing.T) {
	const malformedBody = `{
	  "log": {"entries": [{
	    "startedDateTime": "2024-01-01T00:00:00Z",
	    "request": {"method": "POST", "url": "https://example.com/api/x",
	      "headers": [], "postData": {"mimeType": "application/json", "text": "not json"}},
	    "response": {"status": 200, "headers": [], "content": {}}
	  }]}
	}`
	p, err := Parse([]byte(malformedBody), Options{})
	if err != nil {
		t.Fatalf("Parse should not fail on malformed body: %v", err)
	}
	if len(p.Requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(p.Requests))
	}
	if p.Requests[0].Body == nil || p.Requests[0].Body.Text != "not json" {
		t.Fatalf("expected raw text fallback, got %+v", p.Requests[0].Body)
	}
}
