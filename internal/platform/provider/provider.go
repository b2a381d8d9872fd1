package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/caselight/caselight-backend/internal/types"
)

// ErrorKind is the normalized failure taxonomy every adapter maps its
// provider-specific errors into. The orchestrator only ever sees these.
type ErrorKind string

const (
	KindRateLimited    ErrorKind = "rate_limited"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindUnavailable    ErrorKind = "provider_unavailable"
	KindTimeout        ErrorKind = "timeout"
	KindUnparseable    ErrorKind = "unparseable"
)

// Transient reports whether a failure of this kind is worth retrying
// against the same backend before falling through to the next one.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindRateLimited, KindUnavailable, KindTimeout:
		return true
	}
	return false
}

type ClassifiedError struct {
	Provider string
	Kind     ErrorKind
	// RetryAfter is the backoff the provider asked for, zero when it did
	// not say.
	RetryAfter time.Duration
	Err        error
}

func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// KindOf extracts the classified kind, defaulting to provider_unavailable
// for errors that escaped classification.
func KindOf(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnavailable
}

// ClassifyHTTP maps a provider HTTP status into the taxonomy. retryAfter
// carries the Retry-After value from the response when present.
func ClassifyHTTP(providerName string, status int, retryAfter time.Duration, err error) error {
	kind := KindUnavailable
	switch {
	case status == 429:
		kind = KindRateLimited
	case status == 408:
		kind = KindTimeout
	case status >= 400 && status < 500:
		kind = KindInvalidRequest
	}
	return &ClassifiedError{Provider: providerName, Kind: kind, RetryAfter: retryAfter, Err: err}
}

// RetryAfterOf extracts the provider-requested backoff, zero when the
// error carries none.
func RetryAfterOf(err error) time.Duration {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.RetryAfter
	}
	return 0
}

// ClassifyTransport maps pre-response failures (dial errors, deadline).
func ClassifyTransport(providerName string, err error) error {
	kind := KindUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	} else {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = KindTimeout
		}
	}
	return &ClassifiedError{Provider: providerName, Kind: kind, Err: err}
}

func Unparseable(providerName string, err error) error {
	return &ClassifiedError{Provider: providerName, Kind: KindUnparseable, Err: err}
}

func InvalidRequest(providerName string, err error) error {
	return &ClassifiedError{Provider: providerName, Kind: KindInvalidRequest, Err: err}
}

// Capabilities describes what one backend can do; the orchestrator uses it
// to skip backends that cannot serve a request at all.
type Capabilities struct {
	Name          string
	Model         string
	Levels        []types.ComplexityLevel
	MaxInputChars int
}

func (c Capabilities) SupportsLevel(level types.ComplexityLevel) bool {
	if len(c.Levels) == 0 {
		return true
	}
	for _, l := range c.Levels {
		if l == level {
			return true
		}
	}
	return false
}

// Adapter is the uniform contract over one hosted generation backend.
// Implementations hold no per-call state; the only side effect of Simplify
// is network I/O, bounded by the caller's context deadline.
type Adapter interface {
	Capabilities() Capabilities
	Simplify(ctx context.Context, req types.SimplificationRequest) (*types.SimplificationResult, error)
}
