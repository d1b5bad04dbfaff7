// Package provenance searches the cookie jar and prior filtered responses
// for the source of each unresolved dynamic part, per spec.md §4.5.
package provenance

import (
	"context"
	"strconv"
	"strings"

	"github.com/harvestcore/harvest/internal/errs"
	"github.com/harvestcore/harvest/internal/har"
	"github.com/harvestcore/harvest/internal/llm"
	"github.com/harvestcore/harvest/internal/request"
)

// CookieDependency binds a dynamic part to a cookie jar entry.
type CookieDependency struct {
	Part  string
	Name  string
	Value string
}

// RequestDependency binds a dynamic part to a prior request that produced it.
type RequestDependency struct {
	Part    string
	Request *har.Request
}

// Result is the output of Find.
type Result struct {
	CookieDependencies  []CookieDependency
	RequestDependencies []RequestDependency
	NotFoundParts       []string
}

var tieBreakFunctionDef = llm.FunctionDef{
	Name:        "get_simplest_curl_index",
	Description: "Given several candidate curl commands that could have produced a value, choose the index of the simplest/most direct one.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"index": map[string]any{"type": "integer"},
		},
		"required": []string{"index"},
	},
}

type tieBreakResult struct {
	Index int `json:"index"`
}

// Find searches cookies and prior responses for each part's origin.
// priorRequests is a list of requests whose responses might contain the
// part, ordered earliest-first.
func Find(ctx context.Context, provider llm.Provider, parts []string, cookies map[string]string, priorRequests []*har.Request) (Result, error) {
	var result Result

	candidates := validCandidates(priorRequests)

	for _, part := range parts {
		if name, ok := findInCookies(part, cookies); ok {
			result.CookieDependencies = append(result.CookieDependencies, CookieDependency{Part: part, Name: name, Value: part})
			continue
		}

		matches := matchingRequests(part, candidates)
		switch len(matches) {
		case 0:
			result.NotFoundParts = append(result.NotFoundParts, part)
		case 1:
			result.RequestDependencies = append(result.RequestDependencies, RequestDependency{Part: part, Request: matches[0]})
		default:
			idx, err := tieBreak(ctx, provider, matches)
			if err != nil {
				if errs.KindOf(err) == errs.KindLlmUnavailable || errs.KindOf(err) == errs.KindLlmTimeout {
					return Result{}, err
				}
				idx = 0
			}
			if idx < 0 || idx >= len(matches) {
				idx = 0
			}
			result.RequestDependencies = append(result.RequestDependencies, RequestDependency{Part: part, Request: matches[idx]})
		}
	}

	return result, nil
}

func findInCookies(part string, cookies map[string]string) (string, bool) {
	for name, value := range cookies {
		if value == part {
			return name, true
		}
	}
	return "", false
}

// validCandidates drops requests that cannot be data sources per spec.md
// §4.5: script (.js) or HTML-content responses are not treated as
// provenance candidates.
func validCandidates(requests []*har.Request) []*har.Request {
	var out []*har.Request
	for _, r := range requests {
		if strings.HasSuffix(strings.ToLower(strings.Split(r.URL, "?")[0]), ".js") {
			continue
		}
		if r.Response != nil && strings.Contains(strings.ToLower(r.Response.ContentType), "text/html") {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchingRequests(part string, candidates []*har.Request) []*har.Request {
	var out []*har.Request
	for _, r := range candidates {
		if r.Response == nil {
			continue
		}
		if strings.Contains(r.Response.BodyText, part) {
			out = append(out, r)
			continue
		}
		for _, v := range r.Response.Headers {
			if strings.Contains(v, part) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func tieBreak(ctx context.Context, provider llm.Provider, candidates []*har.Request) (int, error) {
	var b strings.Builder
	for i, c := range candidates {
		b.WriteString("Candidate ")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(":\n")
		b.WriteString(request.Render(c))
		b.WriteString("\n\n")
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "Choose the simplest candidate curl command that most plausibly produced the value."},
		{Role: llm.RoleUser, Content: b.String()},
	}
	var result tieBreakResult
	if err := provider.CallFunction(ctx, messages, tieBreakFunctionDef, &result); err != nil {
		return 0, err
	}
	return result.Index, nil
}
