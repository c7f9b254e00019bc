// storekit/verifier.go
//
// Verification of Apple StoreKit 2 signed transactions.
//
// A StoreKit 2 transaction is a 3-part base64url JWS (header.payload.
// signature). The header carries an x5c certificate chain rooted one hop
// below Apple Root CA G3; the signature is ES256 (ECDSA P-256 + SHA-256)
// over the first two segments.
//
// Ref: https://developer.apple.com/documentation/appstoreserverapi/jwstransactiondecodedpayload
package storekit

import "context"

// Verifier establishes a chain of trust from a token's embedded leaf
// certificate up to a pinned root, then checks the token signature against
// that leaf. It holds no per-call state; the only shared state is the
// injected RootSource.
type Verifier struct {
	roots RootSource
}

// NewVerifier builds a Verifier around an explicit trust anchor source.
func NewVerifier(roots RootSource) *Verifier {
	return &Verifier{roots: roots}
}

// NewAppleVerifier returns a Verifier pinned to Apple Root CA G3, sharing
// the process-wide anchor cache.
func NewAppleVerifier() *Verifier {
	return NewVerifier(AppleRoots())
}

// VerifyTransaction verifies a StoreKit 2 signed transaction string.
//
// Steps:
//  1. Decode the JWS header and extract the x5c certificate chain
//  2. Verify each cert in the chain is signed by the next
//  3. Verify the chain root traces to the pinned trust anchor
//  4. Verify the JWS signature with the leaf cert's public key
//  5. Decode and return the payload
//
// Every failure is a *VerificationError from the closed taxonomy in
// errors.go; the first failing stage short-circuits the rest.
func (v *Verifier) VerifyTransaction(ctx context.Context, token string) (VerifiedPayload, error) {
	Logger.Debugf("[StoreKit] Verifying signed transaction (%d bytes)", len(token))

	tok, err := parseToken(token)
	if err != nil {
		Logger.WithError(err).Warn("[StoreKit] Token parse failed")
		return nil, err
	}
	Logger.Debugf("[StoreKit] Parsed token with %d-certificate chain", len(tok.chain))

	anchor, err := v.roots.Root(ctx)
	if err != nil {
		Logger.WithError(err).Error("[StoreKit] Trust anchor unavailable")
		return nil, err
	}

	if err := validateChain(tok.chain, anchor); err != nil {
		Logger.WithError(err).Warn("[StoreKit] Certificate chain rejected")
		return nil, err
	}
	Logger.Debugf("[StoreKit] Chain traces to %s", anchor.Subject.CommonName)

	if err := verifyJWS(tok.header, tok.payload, tok.signature, tok.chain[0]); err != nil {
		Logger.WithError(err).Warn("[StoreKit] JWS signature rejected")
		return nil, err
	}

	payload, err := decodePayload(tok.payload)
	if err != nil {
		Logger.WithError(err).Warn("[StoreKit] Payload decode failed")
		return nil, err
	}

	Logger.Debug("[StoreKit] Transaction verified")
	return payload, nil
}
