package domain

import "fmt"

// CredentialErrorKind classifies credential acquisition failures.
type CredentialErrorKind int

const (
	CredentialHTTPFailure CredentialErrorKind = iota
	CredentialRejected
	CredentialStrategyMissing
	CredentialTimeout
)

func (k CredentialErrorKind) String() string {
	switch k {
	case CredentialHTTPFailure:
		return "http_failure"
	case CredentialRejected:
		return "rejected"
	case CredentialStrategyMissing:
		return "strategy_missing"
	case CredentialTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// CredentialError reports a failed credential acquisition. Status is only
// meaningful for CredentialHTTPFailure.
type CredentialError struct {
	Kind   CredentialErrorKind
	Status int
	Detail string
}

func (e *CredentialError) Error() string {
	switch e.Kind {
	case CredentialHTTPFailure:
		return fmt.Sprintf("credential request failed: http %d", e.Status)
	case CredentialRejected:
		return fmt.Sprintf("credential rejected: %s", e.Detail)
	case CredentialStrategyMissing:
		return fmt.Sprintf("credential strategy missing: %s", e.Detail)
	case CredentialTimeout:
		return fmt.Sprintf("credential request timed out: %s", e.Detail)
	default:
		return fmt.Sprintf("credential error: %s", e.Detail)
	}
}

// MediaAccessReason classifies microphone acquisition failures.
type MediaAccessReason int

const (
	MediaPermissionDenied MediaAccessReason = iota
	MediaUnsupported
)

func (r MediaAccessReason) String() string {
	if r == MediaUnsupported {
		return "unsupported"
	}
	return "permission_denied"
}

// MediaAccessError reports that the local audio input could not be acquired.
type MediaAccessError struct {
	Reason MediaAccessReason
	Detail string
	Err    error
}

func (e *MediaAccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media access %s: %s: %v", e.Reason, e.Detail, e.Err)
	}
	return fmt.Sprintf("media access %s: %s", e.Reason, e.Detail)
}

func (e *MediaAccessError) Unwrap() error { return e.Err }

// NegotiationError reports a non-success response from the signaling
// exchange. The attempt is never retried automatically.
type NegotiationError struct {
	Status     int
	StatusText string
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation failed: http %d %s", e.Status, e.StatusText)
}

// TransportError reports an unexpected transport failure after the session
// was established. It is fatal: the caller must Cancel and Connect again.
type TransportError struct {
	Detail string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failed: %s", e.Detail)
}
