// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package awscore

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/juju/awscore/schema"
	"github.com/juju/awscore/transport"
)

// ErrMalformedEndpoint marks an endpoint missing its scheme or host.
// A malformed endpoint is a configuration defect: fatal, never
// retried.
const ErrMalformedEndpoint = errors.ConstError("malformed endpoint")

// APIError is a classified non-2xx service response. Code carries
// the service's machine-readable error code when one was found; the
// untyped fallback has an empty Code and keeps the raw response body
// for diagnostics.
type APIError struct {
	Code       string
	Message    string
	StatusCode int
	Retryable  bool

	// RawBody is set on the untyped fallback only.
	RawBody []byte
}

// Error is part of the error interface.
func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("unrecognized service error (status %d)", e.StatusCode)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s (status %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.StatusCode)
}

// ErrorCode returns the service-declared machine-readable code.
func (e *APIError) ErrorCode() string {
	return e.Code
}

// ErrorMatcher is one entry of a service's declared error catalog.
// Catalog entries are consulted in declaration order, before the
// built-in generic kinds.
type ErrorMatcher struct {
	Code      string
	Retryable bool
}

// builtinErrors is the generic catalog shared by every service:
// throttling and transient server-side kinds are retryable, the
// client-side kinds are not.
var builtinErrors = []ErrorMatcher{
	{Code: "Throttling", Retryable: true},
	{Code: "ThrottlingException", Retryable: true},
	{Code: "TooManyRequestsException", Retryable: true},
	{Code: "RequestLimitExceeded", Retryable: true},
	{Code: "ProvisionedThroughputExceededException", Retryable: true},
	{Code: "RequestTimeout", Retryable: true},
	{Code: "ServiceUnavailable", Retryable: true},
	{Code: "InternalFailure", Retryable: true},
	{Code: "InternalError", Retryable: true},
	{Code: "AccessDenied"},
	{Code: "AccessDeniedException"},
	{Code: "IncompleteSignature"},
	{Code: "InvalidAction"},
	{Code: "InvalidClientTokenId"},
	{Code: "InvalidParameterCombination"},
	{Code: "InvalidParameterValue"},
	{Code: "InvalidQueryParameter"},
	{Code: "MalformedQueryString"},
	{Code: "MissingAction"},
	{Code: "MissingAuthenticationToken"},
	{Code: "MissingParameter"},
	{Code: "OptInRequired"},
	{Code: "ValidationError"},
	{Code: "ValidationException"},
}

func matchErrorCode(catalog []ErrorMatcher, code string) (ErrorMatcher, bool) {
	for _, m := range catalog {
		if m.Code == code {
			return m, true
		}
	}
	for _, m := range builtinErrors {
		if m.Code == code {
			return m, true
		}
	}
	return ErrorMatcher{}, false
}

// IsRetryable reports whether err may be offered to the retry
// policy: a transport-level failure, or a service response classified
// as retryable. Validation, configuration and decoding failures are
// never retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, transport.ErrTransport) {
		return true
	}
	var api *APIError
	if errors.As(err, &api) {
		return api.Retryable
	}
	return false
}

// IsClientFault reports whether err originates with the caller: a
// malformed endpoint, a shape validation failure, or a service
// response blaming the request itself.
func IsClientFault(err error) bool {
	if errors.Is(err, ErrMalformedEndpoint) {
		return true
	}
	if schema.IsValidationError(errors.Cause(err)) {
		return true
	}
	var api *APIError
	if errors.As(err, &api) {
		return api.Code != "" && !api.Retryable && api.StatusCode >= 400 && api.StatusCode < 500
	}
	return false
}

// IsThrottling reports whether err is a rate-limiting response.
func IsThrottling(err error) bool {
	var api *APIError
	if !errors.As(err, &api) {
		return false
	}
	switch api.Code {
	case "Throttling", "ThrottlingException", "TooManyRequestsException",
		"RequestLimitExceeded", "ProvisionedThroughputExceededException":
		return true
	}
	return false
}
