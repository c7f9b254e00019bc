// storekit/signature.go
package storekit

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"math/big"
)

// ES256 signatures are two 32-byte big-endian integers, R || S.
const es256SignatureLen = 64

type ecdsaSignature struct {
	R, S *big.Int
}

// verifyJWS checks the ES256 signature over the literal ASCII bytes
// "<header>.<payload>" (the original base64url segments, not their decoded
// bytes) using the leaf certificate's public key.
func verifyJWS(header, payload, signature string, leaf *x509.Certificate) error {
	pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return verificationErr(ErrCodeUnsupportedKeyAlgorithm, fmt.Errorf("leaf key type %T", leaf.PublicKey))
	}

	raw, err := decodeFlexB64(signature)
	if err != nil {
		return verificationErr(ErrCodeInvalidSignature, err)
	}
	if len(raw) != es256SignatureLen {
		return verificationErr(ErrCodeBadSignatureLength, fmt.Errorf("got %d bytes, expected %d", len(raw), es256SignatureLen))
	}

	// JWS carries raw fixed-width R||S; the ecdsa API wants ASN.1 DER.
	sig := ecdsaSignature{
		R: new(big.Int).SetBytes(raw[:32]),
		S: new(big.Int).SetBytes(raw[32:]),
	}
	der, err := asn1.Marshal(sig)
	if err != nil {
		return verificationErr(ErrCodeInvalidSignature, err)
	}

	digest := sha256.Sum256([]byte(header + "." + payload))
	if !ecdsa.VerifyASN1(pub, digest[:], der) {
		return verificationErr(ErrCodeInvalidSignature, nil)
	}
	return nil
}
