package rpclient

import "strconv"

// VerificationReason is the server-declared reason a ceremony result was
// rejected. Unknown server reasons collapse to ReasonRejected so raw error
// internals never surface to users.
type VerificationReason string

const (
	ReasonChallengeMismatch VerificationReason = "challenge_mismatch"
	ReasonSignatureInvalid  VerificationReason = "signature_invalid"
	ReasonCounterRegression VerificationReason = "counter_regression"
	ReasonUnknownCredential VerificationReason = "unknown_credential"
	ReasonRejected          VerificationReason = "rejected"
)

var knownReasons = map[VerificationReason]bool{
	ReasonChallengeMismatch: true,
	ReasonSignatureInvalid:  true,
	ReasonCounterRegression: true,
	ReasonUnknownCredential: true,
}

// OptionsError reports that ceremony options could not be obtained: the
// server declined the request or returned something malformed.
type OptionsError struct {
	Op     string
	Status int
	Reason string
	err    error
}

func (e *OptionsError) Error() string {
	msg := "rpclient: ceremony options unavailable (" + e.Op
	if e.Status != 0 {
		msg += " returned " + strconv.Itoa(e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg + ")"
}

func (e *OptionsError) Unwrap() error {
	return e.err
}

// VerificationError reports that the server rejected a ceremony result. Every
// reason requires a fresh ceremony; the result must never be resubmitted.
type VerificationError struct {
	Ceremony string
	Status   int
	Reason   VerificationReason
}

func (e *VerificationError) Error() string {
	return "rpclient: " + e.Ceremony + " verification failed (" + string(e.Reason) + ")"
}

// TransportError reports a failure to reach the server at all.
type TransportError struct {
	Op  string
	err error
}

func (e *TransportError) Error() string {
	return "rpclient: " + e.Op + " failed: " + e.err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.err
}

// StatusError reports an unexpected status from a non-ceremony endpoint
// (credential management, face enrollment).
type StatusError struct {
	Op     string
	Status int
	Reason string
}

func (e *StatusError) Error() string {
	msg := "rpclient: " + e.Op + " returned " + strconv.Itoa(e.Status)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}
