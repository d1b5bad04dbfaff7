// Package inputvars identifies which user-supplied input variables appear
// within a curl rendering and removes them from the caller's dynamic-parts
// set, per spec.md §4.4.
package inputvars

import (
	"context"

	"github.com/harvestcore/harvest/internal/errs"
	"github.com/harvestcore/harvest/internal/llm"
)

var functionDef = llm.FunctionDef{
	Name:        "identify_variables_present",
	Description: "Identify which of the given named variables appear within a curl command's text.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"variable_names": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"variable_names"},
	},
}

type functionResult struct {
	VariableNames []string `json:"variable_names"`
}

// Result is the output of Bind: the subset of variables that appear in
// the curl text, and the dynamic parts still left unresolved.
type Result struct {
	Bound     map[string]string
	Remaining []string
}

// Bind asks the LLM which variables appear in curlText, then removes any
// dynamic part whose value equals a bound variable's value. Per spec.md
// §4.4, an empty variables map short-circuits without an LLM call.
func Bind(ctx context.Context, provider llm.Provider, curlText string, variables map[string]string, dynamicParts []string) (Result, error) {
	if len(variables) == 0 {
		return Result{Bound: map[string]string{}, Remaining: dynamicParts}, nil
	}

	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You determine which named variables are referenced within a curl command."},
		{Role: llm.RoleUser, Content: curlText},
	}

	var result functionResult
	if err := provider.CallFunction(ctx, messages, functionDef, &result); err != nil {
		if errs.KindOf(err) == errs.KindLlmUnavailable || errs.KindOf(err) == errs.KindLlmTimeout {
			return Result{}, err
		}
		// Malformed responses degrade to "no variables bound" rather than
		// failing the node; the caller still has the provenance finder as
		// a fallback path.
		return Result{Bound: map[string]string{}, Remaining: dynamicParts}, nil
	}

	bound := map[string]string{}
	boundValues := map[string]bool{}
	for _, name := range result.VariableNames {
		if v, ok := variables[name]; ok {
			bound[name] = v
			boundValues[v] = true
		}
	}

	var remaining []string
	for _, part := range dynamicParts {
		if boundValues[part] {
			continue
		}
		remaining = append(remaining, part)
	}

	return Result{Bound: bound, Remaining: remaining}, nil
}
