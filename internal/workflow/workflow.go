// Package workflow identifies the "master" URL realizing a user's prompt
// among a HAR's ordered URL summaries, per spec.md §4.7.
package workflow

import (
	"context"
	"strings"

	"github.com/harvestcore/harvest/internal/errs"
	"github.com/harvestcore/harvest/internal/har"
	"github.com/harvestcore/harvest/internal/llm"
)

var functionDef = llm.FunctionDef{
	Name:        "identify_end_url",
	Description: "Given a natural-language description of a user action and a list of captured HTTP request URLs, identify which URL is the one that realizes the action.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string"},
		},
		"required": []string{"url"},
	},
}

type functionResult struct {
	URL string `json:"url"`
}

// Identify selects the summary that realizes prompt. Falls back to the
// first API-tagged summary if the model's answer isn't among the
// candidates; fails with NoCandidates if summaries is empty.
func Identify(ctx context.Context, provider llm.Provider, prompt string, summaries []har.URLSummary) (har.URLSummary, error) {
	if len(summaries) == 0 {
		return har.URLSummary{}, errs.New(errs.KindNoCandidates, "no URL candidates to identify a workflow from")
	}

	var user strings.Builder
	user.WriteString(prompt)
	user.WriteString("\n\nCaptured requests:\n")
	for _, s := range summaries {
		user.WriteString(s.Method + " " + s.URL + "\n")
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You select which captured HTTP request realizes a described user action."},
		{Role: llm.RoleUser, Content: user.String()},
	}

	var result functionResult
	if err := provider.CallFunction(ctx, messages, functionDef, &result); err == nil {
		for _, s := range summaries {
			if s.URL == result.URL {
				return s, nil
			}
		}
	}

	return fallback(summaries)
}

func fallback(summaries []har.URLSummary) (har.URLSummary, error) {
	for _, s := range summaries {
		if s.ResponseType != "" && isAPILike(s) {
			return s, nil
		}
	}
	return summaries[0], nil
}

func isAPILike(s har.URLSummary) bool {
	for _, hint := range []string{"/api/", "/v1/", "/v2/", "/rest/", "/graphql"} {
		if strings.Contains(s.URL, hint) {
			return true
		}
	}
	return s.ResponseType == "application/json"
}
