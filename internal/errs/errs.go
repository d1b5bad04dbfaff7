// Package errs defines the error taxonomy shared across the analysis core.
// It follows the teacher's plain fmt.Errorf("%w", ...) wrapping style —
// no custom error framework, just a closed set of symbolic kinds that
// callers can compare with errors.Is.
package errs

import "fmt"

// Kind is a symbolic error category from spec.md §7.
type Kind string

const (
	KindInvalidHarFormat       Kind = "InvalidHarFormat"
	KindEmptyHar               Kind = "EmptyHar"
	KindNoCandidates           Kind = "NoCandidates"
	KindLlmUnavailable         Kind = "LlmUnavailable"
	KindLlmTimeout             Kind = "LlmTimeout"
	KindLlmMalformedResponse   Kind = "LlmMalformedResponse"
	KindNoProviderConfigured   Kind = "NoProviderConfigured"
	KindMissingApiKey          Kind = "MissingApiKey"
	KindCycleDetected          Kind = "CycleDetected"
	KindAnalysisIncomplete     Kind = "AnalysisIncomplete"
	KindSessionNotFound        Kind = "SessionNotFound"
	KindSessionAlreadyInit     Kind = "SessionAlreadyInitialized"
	KindSessionAtCapacity      Kind = "SessionAtCapacity"
	KindIoError                Kind = "IoError"
	KindPermissionDenied       Kind = "PermissionDenied"
	KindOutputPathUnsafe       Kind = "OutputPathUnsafe"
	KindAlreadyInitialized     Kind = "AlreadyInitialized"
	KindInvalidTransition      Kind = "InvalidTransition"
)

// E is an error tagged with a symbolic Kind, an optional node/session
// context id, and optional structured data (e.g. a completion report)
// for callers that need more than a message.
type E struct {
	Kind    Kind
	Message string
	Data    any
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

// New creates an *E with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *E that wraps an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithData attaches structured context (e.g. a completion report) to an *E.
func (e *E) WithData(data any) *E {
	e.Data = data
	return e
}

// KindOf returns the Kind of err if it (or something it wraps) is an *E,
// otherwise the empty Kind.
func KindOf(err error) Kind {
	var e *E
	for err != nil {
		if asE, ok := err.(*E); ok {
			e = asE
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	if e == nil {
		return ""
	}
	return e.Kind
}
