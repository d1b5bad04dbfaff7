// Package har parses HAR 1.2 archives, normalizes their entries into the
// analysis core's Request/Response model, and filters out non-signal
// traffic (analytics, preflights, static assets).
package har

import "time"

// rawHAR mirrors the subset of HAR 1.2 this package consumes:
// log.entries[*].request, log.entries[*].response, log.entries[*].startedDateTime.
type rawHAR struct {
	Log struct {
		Entries []rawEntry `json:"entries"`
	} `json:"log"`
}

type rawEntry struct {
	StartedDateTime time.Time  `json:"startedDateTime"`
	Request         rawRequest `json:"request"`
	Response        rawResponse `json:"response"`
}

type rawNameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type rawPostData struct {
	MimeType string         `json:"mimeType"`
	Text     string         `json:"text"`
	Params   []rawNameValue `json:"params"`
}

type rawRequest struct {
	Method      string         `json:"method"`
	URL         string         `json:"url"`
	Headers     []rawNameValue `json:"headers"`
	QueryString []rawNameValue `json:"queryString"`
	PostData    *rawPostData   `json:"postData"`
	Cookies     []rawNameValue `json:"cookies"`
}

type rawContent struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type rawResponse struct {
	Status      int            `json:"status"`
	StatusText  string         `json:"statusText"`
	Headers     []rawNameValue `json:"headers"`
	Content     rawContent     `json:"content"`
}

// Body is a request/response payload: either a parsed JSON tree, a
// form-encoded key/value mapping, or raw text — exactly one is non-nil.
type Body struct {
	JSON any
	Form map[string]string
	Text string
}

// IsEmpty reports whether the body carries no payload at all.
func (b *Body) IsEmpty() bool {
	return b == nil || (b.JSON == nil && b.Form == nil && b.Text == "")
}

// Request is the canonical, normalized HTTP request record.
type Request struct {
	ID      string // stable, process-local interned identifier
	Method  string
	URL     string
	// Headers preserves original casing; lookups are case-insensitive
	// via HeaderValue.
	Headers     map[string]string
	HeaderOrder []string // insertion order, for deterministic rendering
	Query       map[string]string
	Body        *Body
	Response    *Response
	StartedAt   time.Time
}

// HeaderValue looks up a header case-insensitively.
func (r *Request) HeaderValue(name string) (string, bool) {
	for k, v := range r.Headers {
		if equalFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Response is the canonical, normalized HTTP response record.
type Response struct {
	Status      int
	StatusText  string
	Headers     map[string]string
	BodyText    string
	BodyJSON    any // parsed from BodyText during normalization when content-type is JSON-like; nil if parsing fails
	ContentType string
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
