package har

import "strings"

// trackingHeaderSubstrings are lowercased substrings that mark a header as
// analytics/tracing noise. A header is dropped if its lowercased name
// contains one of these, unless it also matches preservedAuthHeaders.
var trackingHeaderSubstrings = []string{
	"sec-", "accept", "user-agent", "referer", "relic", "sentry", "datadog",
	"amplitude", "mixpanel", "segment", "heap", "hotjar", "fullstory",
	"pendo", "optimizely", "adobe", "analytics", "tracking", "telemetry",
	"clarity", "matomo", "plausible",
}

// preservedAuthHeaders always survive header filtering.
var preservedAuthHeaders = []string{
	"authorization", "cookie", "x-api-key", "x-auth-token", "x-access-token",
	"x-csrf-token", "x-xsrf-token", "x-requested-with",
}

// defaultURLDenylist is the default provider/analytics keyword list applied
// to request URLs. Callers may override it wholesale via Options.
var defaultURLDenylist = []string{
	"google", "taboola", "datadog", "sentry", "facebook", "twitter",
	"linkedin", "amplitude", "mixpanel", "segment", "heap", "hotjar",
	"fullstory", "pendo", "optimizely", "adobe", "analytics", "tracking",
	"telemetry", "clarity", "matomo", "plausible",
}

var apiPathHints = []string{"/api/", "/v1/", "/v2/", "/rest/", "/graphql"}

// Options controls HAR filtering behavior, per spec.md §4.1.
type Options struct {
	ExcludeKeywords       []string
	IncludeAllAPIRequests bool
	PreserveAnalytics     bool
	CustomFilters         []func(url string) bool
}

func shouldDropHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, preserved := range preservedAuthHeaders {
		if strings.Contains(lower, preserved) {
			return false
		}
	}
	for _, bad := range trackingHeaderSubstrings {
		if strings.Contains(lower, bad) {
			return true
		}
	}
	return false
}

// shouldExclude evaluates the filtering rule chain against one request URL
// and content-type, in the order spec.md §4.1 prescribes.
func shouldExclude(opts Options, method, url, contentType string) bool {
	if opts.PreserveAnalytics {
		return false
	}
	lowerURL := strings.ToLower(url)

	if opts.IncludeAllAPIRequests {
		for _, hint := range apiPathHints {
			if strings.Contains(lowerURL, hint) {
				return false
			}
		}
	}

	for _, f := range opts.CustomFilters {
		if f(url) {
			return true
		}
	}

	denylist := opts.ExcludeKeywords
	if len(denylist) == 0 {
		denylist = defaultURLDenylist
	}
	for _, kw := range denylist {
		if strings.Contains(lowerURL, strings.ToLower(kw)) {
			return true
		}
	}

	if strings.EqualFold(method, "OPTIONS") {
		return true
	}

	if isStaticAssetContentType(contentType) {
		return true
	}

	return false
}

func isStaticAssetContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return true
	case strings.HasPrefix(ct, "font/"):
		return true
	case ct == "text/css":
		return true
	case ct == "application/javascript", ct == "text/javascript":
		return true
	}
	return false
}
