// storekit/errors.go
package storekit

import "fmt"

// Error codes for every way a verification can fail. The set is closed:
// VerifyTransaction never returns an error outside this taxonomy.
const (
	// Structural input problems.
	ErrCodeMalformedToken          = "malformed_token"
	ErrCodeMalformedHeader         = "malformed_header"
	ErrCodeMissingCertificateChain = "missing_certificate_chain"
	ErrCodeMalformedCertificate    = "malformed_certificate"

	// Chain-of-trust failures.
	ErrCodeChainBrokenAt           = "chain_broken_at"
	ErrCodeChainNotTrusted         = "chain_not_trusted"
	ErrCodeUnsupportedKeyAlgorithm = "unsupported_key_algorithm"

	// JWS signature failures.
	ErrCodeBadSignatureLength = "bad_signature_length"
	ErrCodeInvalidSignature   = "invalid_signature"

	// Payload decode failure.
	ErrCodeMalformedPayload = "malformed_payload"

	// Trust-anchor bootstrap failures.
	ErrCodeAnchorFetchFailed         = "anchor_fetch_failed"
	ErrCodeAnchorFingerprintMismatch = "anchor_fingerprint_mismatch"
)

// VerificationError is the error type returned by every verification stage.
// Code identifies the failure; Index carries the certificate position for
// malformed_certificate and chain_broken_at (-1 otherwise).
type VerificationError struct {
	Code  string
	Index int
	Err   error
}

func (e *VerificationError) Error() string {
	if e.Index >= 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: position %d: %v", e.Code, e.Index, e.Err)
		}
		return fmt.Sprintf("%s: position %d", e.Code, e.Index)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Is matches on the code so callers can test against the exported
// sentinels with errors.Is regardless of index or underlying cause.
func (e *VerificationError) Is(target error) bool {
	t, ok := target.(*VerificationError)
	return ok && t.Code == e.Code
}

// Retryable reports whether retrying the same call can plausibly succeed.
// Only a failed anchor fetch is transient; every other error is a permanent
// rejection of that token.
func (e *VerificationError) Retryable() bool {
	return e.Code == ErrCodeAnchorFetchFailed
}

// Alarm reports whether the failure indicates a compromised fetch path or a
// stale pin rather than a bad token. Callers should surface these as
// operational alerts, not ordinary rejections.
func (e *VerificationError) Alarm() bool {
	return e.Code == ErrCodeAnchorFingerprintMismatch
}

// Sentinels for errors.Is matching.
var (
	ErrMalformedToken            = &VerificationError{Code: ErrCodeMalformedToken, Index: -1}
	ErrMalformedHeader           = &VerificationError{Code: ErrCodeMalformedHeader, Index: -1}
	ErrMissingCertificateChain   = &VerificationError{Code: ErrCodeMissingCertificateChain, Index: -1}
	ErrMalformedCertificate      = &VerificationError{Code: ErrCodeMalformedCertificate, Index: -1}
	ErrChainBrokenAt             = &VerificationError{Code: ErrCodeChainBrokenAt, Index: -1}
	ErrChainNotTrusted           = &VerificationError{Code: ErrCodeChainNotTrusted, Index: -1}
	ErrUnsupportedKeyAlgorithm   = &VerificationError{Code: ErrCodeUnsupportedKeyAlgorithm, Index: -1}
	ErrBadSignatureLength        = &VerificationError{Code: ErrCodeBadSignatureLength, Index: -1}
	ErrInvalidSignature          = &VerificationError{Code: ErrCodeInvalidSignature, Index: -1}
	ErrMalformedPayload          = &VerificationError{Code: ErrCodeMalformedPayload, Index: -1}
	ErrAnchorFetchFailed         = &VerificationError{Code: ErrCodeAnchorFetchFailed, Index: -1}
	ErrAnchorFingerprintMismatch = &VerificationError{Code: ErrCodeAnchorFingerprintMismatch, Index: -1}
)

func verificationErr(code string, cause error) *VerificationError {
	return &VerificationError{Code: code, Index: -1, Err: cause}
}

func positionalErr(code string, index int, cause error) *VerificationError {
	return &VerificationError{Code: code, Index: index, Err: cause}
}
