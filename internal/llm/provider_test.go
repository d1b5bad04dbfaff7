package llm

import "testing"

func TestKeyShape(t *testing.T) {
	cases := map[string]string{
		"sk-abc123":     "openai",
		"AIzaSyAbc123":  "gemini",
		"unknown-shape": "openai",
		"":              "openai",
	}
	for key, want := range cases {
		if got := KeyShape(key); got != want {
			t.Errorf("KeyShape(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestSelectPrecedence(t *testing.T) {
	in := SelectionInput{
		ExplicitOverride: "gemini",
		CLIFlag:          "openai",
		EnvProvider:      "openai",
		AvailableKeys:    map[string]string{"openai": "sk-x"},
	}
	if got := Select(in); got != "gemini" {
		t.Fatalf("explicit override should win, got %q", got)
	}

	in.ExplicitOverride = ""
	if got := Select(in); got != "openai" {
		t.Fatalf("CLI flag should win over env/auto-detect, got %q", got)
	}

	in.CLIFlag = ""
	if got := Select(in); got != "openai" {
		t.Fatalf("env should win over auto-detect, got %q", got)
	}

	in.EnvProvider = ""
	if got := Select(in); got != "openai" {
		t.Fatalf("auto-detect from key shape should resolve openai, got %q", got)
	}

	in.AvailableKeys = map[string]string{}
	if got := Select(in); got != "" {
		t.Fatalf("expected no provider resolved, got %q", got)
	}
}
