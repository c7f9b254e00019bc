// storekit/token.go
package storekit

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// jwsToken holds the three compact-serialization segments in their original
// base64url form plus the certificate chain parsed out of the header. The
// chain is ordered leaf first; the submitted root sits one hop below the
// pinned anchor and is never the anchor itself.
type jwsToken struct {
	header    string
	payload   string
	signature string
	chain     []*x509.Certificate
}

// decodeFlexB64 handles URL-safe base64 with or without padding.
func decodeFlexB64(s string) ([]byte, error) {
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}
	return base64.StdEncoding.DecodeString(s)
}

// parseToken splits and decodes a compact JWS without verifying anything.
func parseToken(token string) (*jwsToken, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, verificationErr(ErrCodeMalformedToken, fmt.Errorf("expected 3 segments, got %d", len(parts)))
	}

	headerJSON, err := decodeFlexB64(parts[0])
	if err != nil {
		return nil, verificationErr(ErrCodeMalformedHeader, err)
	}
	var header map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &header); err != nil || header == nil {
		return nil, verificationErr(ErrCodeMalformedHeader, err)
	}

	var x5c []string
	if raw, ok := header["x5c"]; ok {
		if err := json.Unmarshal(raw, &x5c); err != nil {
			return nil, verificationErr(ErrCodeMalformedHeader, err)
		}
	}
	// x5c[0] is the signing leaf, x5c[1] the Apple WWDR intermediate. The
	// root CA is not part of the chain.
	if len(x5c) < 2 {
		return nil, verificationErr(ErrCodeMissingCertificateChain, fmt.Errorf("x5c has %d entries, need at least 2", len(x5c)))
	}

	chain := make([]*x509.Certificate, len(x5c))
	for i, entry := range x5c {
		// x5c entries are standard base64, not base64url.
		der, err := base64.StdEncoding.DecodeString(entry)
		if err != nil {
			return nil, positionalErr(ErrCodeMalformedCertificate, i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, positionalErr(ErrCodeMalformedCertificate, i, err)
		}
		chain[i] = cert
	}

	return &jwsToken{
		header:    parts[0],
		payload:   parts[1],
		signature: parts[2],
		chain:     chain,
	}, nil
}
