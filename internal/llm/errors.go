package llm

import "github.com/harvestcore/harvest/internal/errs"

func errNoProviderConfigured(name string) error {
	if name == "" {
		return errs.New(errs.KindNoProviderConfigured, "no LLM provider could be resolved")
	}
	return errs.New(errs.KindNoProviderConfigured, "unknown provider %q", name)
}
