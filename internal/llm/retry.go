package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/harvestcore/harvest/internal/errs"
)

// ErrUnknownFunction is returned when the model calls back a function name
// the caller never declared. Not retried, per spec.md §5.
var ErrUnknownFunction = errors.New("llm: model called an unknown function")

// ErrArgumentParse is returned when the model's function-call arguments
// fail to unmarshal against the caller's result schema. Not retried.
var ErrArgumentParse = errors.New("llm: function arguments did not match schema")

// retryable reports whether err should trigger another attempt, per
// spec.md §5: retry only transport-level errors and malformed responses;
// never retry missing-API-key, unknown-function, or argument-parse errors.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnknownFunction) || errors.Is(err, ErrArgumentParse) {
		return false
	}
	switch errs.KindOf(err) {
	case errs.KindMissingApiKey, errs.KindNoProviderConfigured:
		return false
	case errs.KindLlmUnavailable, errs.KindLlmTimeout, errs.KindLlmMalformedResponse:
		return true
	}
	return false
}

// retrying wraps a Provider with the exponential backoff schedule from
// spec.md §5: up to maxRetries additional attempts, 1s/2s/4s delays.
type retrying struct {
	Provider
	maxRetries int
}

// WithRetry wraps p so CallFunction and GenerateCompletion retry per the
// policy in spec.md §5. maxRetries <= 0 disables retrying.
func WithRetry(p Provider, maxRetries int) Provider {
	if maxRetries <= 0 {
		return p
	}
	return &retrying{Provider: p, maxRetries: maxRetries}
}

func (r *retrying) backoffPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.maxRetries)), ctx)
}

func (r *retrying) CallFunction(ctx context.Context, messages []Message, fn FunctionDef, result any) error {
	return backoff.Retry(func() error {
		err := r.Provider.CallFunction(ctx, messages, fn, result)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, r.backoffPolicy(ctx))
}

func (r *retrying) GenerateCompletion(ctx context.Context, messages []Message, opts CompletionOptions) (Completion, error) {
	var out Completion
	err := backoff.Retry(func() error {
		var innerErr error
		out, innerErr = r.Provider.GenerateCompletion(ctx, messages, opts)
		if innerErr != nil && !retryable(innerErr) {
			return backoff.Permanent(innerErr)
		}
		return innerErr
	}, r.backoffPolicy(ctx))
	return out, err
}
