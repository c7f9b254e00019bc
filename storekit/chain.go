// storekit/chain.go
package storekit

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	_ "crypto/sha1"   // hash registration for signatureHash
	_ "crypto/sha512" // hash registration for signatureHash
	"crypto/x509"
	"errors"
	"fmt"
)

var errSignatureMismatch = errors.New("signature mismatch")

// signatureHash maps a certificate's declared signature algorithm to the
// hash it was signed with.
func signatureHash(alg x509.SignatureAlgorithm) (crypto.Hash, bool) {
	switch alg {
	case x509.ECDSAWithSHA256, x509.SHA256WithRSA:
		return crypto.SHA256, true
	case x509.ECDSAWithSHA384, x509.SHA384WithRSA:
		return crypto.SHA384, true
	case x509.ECDSAWithSHA512, x509.SHA512WithRSA:
		return crypto.SHA512, true
	case x509.ECDSAWithSHA1, x509.SHA1WithRSA:
		return crypto.SHA1, true
	}
	return 0, false
}

// verifySignedBy checks that child's signature over its to-be-signed bytes
// was produced by issuer's key, using child's declared hash. This is a pure
// signature check: no validity periods, no extensions, no revocation —
// exactly the narrow chain shape Apple uses.
func verifySignedBy(child, issuer *x509.Certificate) error {
	hash, ok := signatureHash(child.SignatureAlgorithm)
	if !ok {
		return verificationErr(ErrCodeUnsupportedKeyAlgorithm, fmt.Errorf("signature algorithm %s", child.SignatureAlgorithm))
	}
	h := hash.New()
	h.Write(child.RawTBSCertificate)
	digest := h.Sum(nil)

	switch pub := issuer.PublicKey.(type) {
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(pub, digest, child.Signature) {
			return errSignatureMismatch
		}
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(pub, hash, digest, child.Signature); err != nil {
			return err
		}
	default:
		return verificationErr(ErrCodeUnsupportedKeyAlgorithm, fmt.Errorf("issuer key type %T", issuer.PublicKey))
	}
	return nil
}

// validateChain verifies every internal link of the chain, then the final
// link against the anchor. Any failure from the signature primitives is a
// rejection; nothing here is treated as "valid by default".
func validateChain(chain []*x509.Certificate, anchor *x509.Certificate) error {
	for i := 0; i < len(chain)-1; i++ {
		if err := verifySignedBy(chain[i], chain[i+1]); err != nil {
			var ve *VerificationError
			if errors.As(err, &ve) {
				return ve
			}
			Logger.Warnf("[ChainValidator] Link %d -> %d failed: %v", i, i+1, err)
			return positionalErr(ErrCodeChainBrokenAt, i, err)
		}
	}

	last := len(chain) - 1
	if err := verifySignedBy(chain[last], anchor); err != nil {
		var ve *VerificationError
		if errors.As(err, &ve) {
			return ve
		}
		Logger.Warnf("[ChainValidator] Chain root not signed by trust anchor: %v", err)
		return verificationErr(ErrCodeChainNotTrusted, err)
	}
	return nil
}
