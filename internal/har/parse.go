package har

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/harvestcore/harvest/internal/errs"
)

// URLSummary is one deduplicated, ordered entry in a ParsedHAR's summary
// list: method, URL, and the request/response content-type tags used for
// workflow identification and quality scoring.
type URLSummary struct {
	Method       string
	URL          string
	RequestType  string
	ResponseType string
	isAPI        bool
}

// ParsedHAR is the normalized, filtered result of parsing a HAR archive.
type ParsedHAR struct {
	Requests     []*Request
	URLSummaries []URLSummary
	Report       ValidationReport
}

// Parse parses a HAR 1.2 document and applies the filtering rules in
// spec.md §4.1, returning the normalized request set and a validation report.
func Parse(data []byte, opts Options) (*ParsedHAR, error) {
	var raw rawHAR
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errs.Wrap(errs.KindInvalidHarFormat, err, "malformed HAR JSON")
	}
	if raw.Log.Entries == nil {
		return nil, errs.New(errs.KindInvalidHarFormat, "log.entries missing")
	}

	report := ValidationReport{TotalEntries: len(raw.Log.Entries)}
	requests := make([]*Request, 0, len(raw.Log.Entries))
	seen := make(map[string]bool)
	var summaries []URLSummary

	for i, entry := range raw.Log.Entries {
		req := normalizeRequest(entry)
		respContentType := contentTypeOf(entry.Response.Headers)
		if respContentType == "" {
			respContentType = entry.Response.Content.MimeType
		}

		if shouldExclude(opts, req.Method, req.URL, respContentType) {
			continue
		}

		req.ID = fmt.Sprintf("req-%d", i)
		req.Response = normalizeResponse(entry.Response)
		req.StartedAt = entry.StartedDateTime
		requests = append(requests, req)

		report.Relevant++
		updateAuthAnalysis(&report.Auth, req)
		if isAPIRequest(req.URL, respContentType) {
			report.APIRequests++
		}
		if isModifying(req.Method) {
			report.ModifyingRequests++
		}
		if req.Response != nil && req.Response.BodyText != "" {
			report.ResponsesWithBody++
		}
		var reqAuth AuthAnalysis
		updateAuthAnalysis(&reqAuth, req)
		if reqAuth.HasAuthHeaders || reqAuth.HasCookies {
			report.AuthRequests++
		}
		if reqAuth.HasTokens {
			report.TokenRequests++
		}
		if req.Response != nil && (req.Response.Status == 401 || req.Response.Status == 403) {
			report.AuthErrors++
		}

		key := req.Method + " " + req.URL
		if !seen[key] {
			seen[key] = true
			summaries = append(summaries, URLSummary{
				Method:       req.Method,
				URL:          req.URL,
				RequestType:  contentTypeOf(entry.Request.Headers),
				ResponseType: respContentType,
				isAPI:        isAPIRequest(req.URL, respContentType),
			})
		}
	}

	sortSummaries(summaries)

	report.Quality = assessQuality(&report)
	report.Recommendations = buildRecommendations(&report)

	return &ParsedHAR{
		Requests:     requests,
		URLSummaries: summaries,
		Report:       report,
	}, nil
}

func normalizeRequest(entry rawEntry) *Request {
	headers := map[string]string{}
	var order []string
	for _, h := range entry.Request.Headers {
		if shouldDropHeader(h.Name) {
			continue
		}
		if _, exists := headers[h.Name]; !exists {
			order = append(order, h.Name)
		}
		headers[h.Name] = h.Value
	}

	query := map[string]string{}
	for _, q := range entry.Request.QueryString {
		query[q.Name] = q.Value
	}
	if parsed, err := url.Parse(entry.Request.URL); err == nil {
		for k, vs := range parsed.Query() {
			if len(vs) > 0 {
				if _, exists := query[k]; !exists {
					query[k] = vs[0]
				}
			}
		}
	}

	return &Request{
		Method:      entry.Request.Method,
		URL:         entry.Request.URL,
		Headers:     headers,
		HeaderOrder: order,
		Query:       query,
		Body:        normalizeBody(entry.Request.PostData),
	}
}

func normalizeBody(pd *rawPostData) *Body {
	if pd == nil {
		return nil
	}
	if pd.Text != "" {
		var tree any
		if err := json.Unmarshal([]byte(pd.Text), &tree); err == nil {
			return &Body{JSON: tree}
		}
		return &Body{Text: pd.Text}
	}
	if len(pd.Params) > 0 {
		form := map[string]string{}
		for _, p := range pd.Params {
			form[p.Name] = p.Value
		}
		return &Body{Form: form}
	}
	return nil
}

func normalizeResponse(r rawResponse) *Response {
	headers := map[string]string{}
	for _, h := range r.Headers {
		headers[h.Name] = h.Value
	}
	resp := &Response{
		Status:      r.Status,
		StatusText:  r.StatusText,
		Headers:     headers,
		BodyText:    r.Content.Text,
		ContentType: r.Content.MimeType,
	}
	if isJSONContentType(resp.ContentType) && resp.BodyText != "" {
		var tree any
		if err := json.Unmarshal([]byte(resp.BodyText), &tree); err == nil {
			resp.BodyJSON = tree
		}
	}
	return resp
}

func contentTypeOf(headers []rawNameValue) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, "content-type") {
			return h.Value
		}
	}
	return ""
}

func isJSONContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "text/json")
}

func isAPIRequest(rawURL, respContentType string) bool {
	lower := strings.ToLower(rawURL)
	for _, hint := range apiPathHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return isJSONContentType(respContentType)
}

func isModifying(method string) bool {
	switch strings.ToUpper(method) {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

func updateAuthAnalysis(a *AuthAnalysis, req *Request) {
	for _, name := range []string{"authorization", "x-api-key", "x-auth-token", "x-access-token", "x-csrf-token", "x-xsrf-token"} {
		if v, ok := req.HeaderValue(name); ok {
			a.HasAuthHeaders = true
			if strings.HasPrefix(strings.ToLower(v), "bearer ") || strings.EqualFold(name, "x-api-key") || strings.EqualFold(name, "x-auth-token") || strings.EqualFold(name, "x-access-token") {
				a.HasTokens = true
				a.TokenSamples = append(a.TokenSamples, truncateToken(v))
			}
			addAuthType(a, name)
		}
	}
	if _, ok := req.HeaderValue("cookie"); ok {
		a.HasCookies = true
	}
}

func addAuthType(a *AuthAnalysis, name string) {
	lower := strings.ToLower(name)
	for _, existing := range a.AuthTypes {
		if existing == lower {
			return
		}
	}
	a.AuthTypes = append(a.AuthTypes, lower)
}

func truncateToken(v string) string {
	const max = 12
	if len(v) <= max {
		return v
	}
	return v[:max] + "..."
}

// methodPriority orders summaries within each API/non-API group per spec.md §4.1: POST < PUT
// < DELETE < GET < others.
func methodPriority(method string) int {
	switch strings.ToUpper(method) {
	case "POST":
		return 0
	case "PUT":
		return 1
	case "DELETE":
		return 2
	case "GET":
		return 3
	default:
		return 4
	}
}

func sortSummaries(s []URLSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].isAPI != s[j].isAPI {
			return s[i].isAPI
		}
		pi, pj := methodPriority(s[i].Method), methodPriority(s[j].Method)
		if pi != pj {
			return pi < pj
		}
		return false
	})
}
