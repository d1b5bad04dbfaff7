// Package classify identifies candidate dynamic substrings within a curl
// rendering via the LLM function-call contract, per spec.md §4.3.
package classify

import (
	"context"
	"sort"
	"strings"

	"github.com/harvestcore/harvest/internal/errs"
	"github.com/harvestcore/harvest/internal/llm"
)

// staticValues are well-known literals the classifier never treats as
// dynamic, even if the model returns them.
var staticValues = map[string]bool{
	"application/json": true, "true": true, "false": true, "null": true,
	"text/plain": true, "text/html": true, "multipart/form-data": true,
	"application/x-www-form-urlencoded": true,
	"get": true, "post": true, "put": true, "delete": true, "patch": true,
	"options": true, "head": true,
}

var functionDef = llm.FunctionDef{
	Name:        "identify_dynamic_parts",
	Description: "Identify substrings in a curl command that are likely produced dynamically by an earlier request (tokens, ids, session keys) rather than static literals.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"dynamic_parts": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"dynamic_parts"},
	},
}

type functionResult struct {
	DynamicParts []string `json:"dynamic_parts"`
}

// Classify returns the ordered, deduplicated set of candidate dynamic
// substrings within curlText, per spec.md §4.3's policy chain.
func Classify(ctx context.Context, provider llm.Provider, curlText string, inputVariables map[string]string) ([]string, error) {
	if strings.HasSuffix(firstLineURL(curlText), ".js") {
		return nil, nil
	}

	system := "You analyze HTTP requests rendered as curl commands and identify substrings that look dynamically generated."
	if len(inputVariables) > 0 {
		values := make([]string, 0, len(inputVariables))
		for _, v := range inputVariables {
			values = append(values, v)
		}
		sort.Strings(values)
		system += " These values are user-supplied inputs, not dynamic parts: " + strings.Join(values, ", ")
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: curlText},
	}

	var result functionResult
	err := provider.CallFunction(ctx, messages, functionDef, &result)
	if err != nil {
		if errs.KindOf(err) == errs.KindLlmUnavailable || errs.KindOf(err) == errs.KindLlmTimeout {
			return nil, err
		}
		// Malformed responses degrade to an empty set rather than failing
		// the whole analysis, per spec.md §4.3.
		return nil, nil
	}

	return postFilter(result.DynamicParts, inputVariables), nil
}

func postFilter(candidates []string, inputVariables map[string]string) []string {
	valueSet := map[string]bool{}
	for _, v := range inputVariables {
		valueSet[v] = true
	}

	seen := map[string]bool{}
	var out []string
	for _, c := range candidates {
		if c == "" || len(c) < 2 {
			continue
		}
		if valueSet[c] {
			continue
		}
		if staticValues[strings.ToLower(c)] {
			continue
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// firstLineURL extracts the quoted URL token from a curl command's first
// line, used only to check for a .js suffix.
func firstLineURL(curlText string) string {
	idx := strings.Index(curlText, "'")
	if idx < 0 {
		return ""
	}
	rest := curlText[idx+1:]
	end := strings.Index(rest, "'")
	if end < 0 {
		return rest
	}
	url := rest[:end]
	if q := strings.IndexAny(url, "?#"); q >= 0 {
		url = url[:q]
	}
	return url
}
