// Package request renders canonical har.Request values as deterministic
// curl commands and parses them back, used as the textual representation
// fed to the LLM and stored on DAG nodes.
package request

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/harvestcore/harvest/internal/har"
)

// Render produces a deterministic `curl -X ...` command for req. Headers
// are emitted in alphabetical, case-insensitive order but preserve their
// original casing, so repeated renders of the same request are
// byte-identical.
func Render(req *har.Request) string {
	var b strings.Builder
	b.WriteString("curl -X ")
	b.WriteString(strings.ToUpper(req.Method))
	b.WriteString(" '")
	b.WriteString(req.URL)
	b.WriteString("'")

	names := append([]string(nil), req.HeaderOrder...)
	sort.SliceStable(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	for _, name := range names {
		v := req.Headers[name]
		fmt.Fprintf(&b, " \\\n  -H '%s: %s'", name, v)
	}

	if req.Body != nil {
		if req.Body.JSON != nil {
			if raw, err := json.Marshal(req.Body.JSON); err == nil {
				fmt.Fprintf(&b, " \\\n  -d '%s'", string(raw))
			}
		} else if len(req.Body.Form) > 0 {
			vals := url.Values{}
			for k, v := range req.Body.Form {
				vals.Set(k, v)
			}
			fmt.Fprintf(&b, " \\\n  -d '%s'", vals.Encode())
		} else if req.Body.Text != "" {
			fmt.Fprintf(&b, " \\\n  -d '%s'", req.Body.Text)
		}
	}

	return b.String()
}

// Parse reverses Render, recovering method, URL, headers, and body from a
// curl command string. Only the subset of curl syntax Render itself
// produces is supported — this is a round-trip helper, not a general curl
// parser.
func Parse(curlText string) (*har.Request, error) {
	tokens, err := tokenize(curlText)
	if err != nil {
		return nil, err
	}
	req := &har.Request{
		Method:  "GET",
		Headers: map[string]string{},
		Query:   map[string]string{},
	}
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok {
		case "curl":
			continue
		case "-X":
			i++
			req.Method = strings.ToUpper(tokens[i])
		case "-H":
			i++
			parts := strings.SplitN(tokens[i], ":", 2)
			if len(parts) == 2 {
				name := strings.TrimSpace(parts[0])
				req.Headers[name] = strings.TrimSpace(parts[1])
				req.HeaderOrder = append(req.HeaderOrder, name)
			}
		case "-d":
			i++
			body := tokens[i]
			var tree any
			if err := json.Unmarshal([]byte(body), &tree); err == nil {
				req.Body = &har.Body{JSON: tree}
			} else {
				req.Body = &har.Body{Text: body}
			}
		default:
			if strings.HasPrefix(tok, "http://") || strings.HasPrefix(tok, "https://") {
				req.URL = tok
				if parsed, err := url.Parse(tok); err == nil {
					for k, vs := range parsed.Query() {
						if len(vs) > 0 {
							req.Query[k] = vs[0]
						}
					}
				}
			}
		}
	}
	return req, nil
}

// tokenize splits a curl command into shell-like tokens, honoring single
// quotes around values (the only quoting style Render produces).
func tokenize(s string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
			cur.WriteByte(c)
		case c == ' ' || c == '\n' || c == '\t' || c == '\\':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return tokens, nil
}
