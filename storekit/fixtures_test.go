package storekit

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// testPKI is a synthetic Apple-shaped hierarchy: a pinned root, one
// intermediate, and a P-256 signing leaf, mirroring the
// leaf -> WWDR intermediate -> Root CA G3 chain of real tokens.
type testPKI struct {
	rootCert *x509.Certificate
	rootDER  []byte

	interCert *x509.Certificate
	interDER  []byte

	leafCert *x509.Certificate
	leafDER  []byte
	leafKey  *ecdsa.PrivateKey
}

func caTemplate(serial int64, cn string) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"Test Apple Inc."}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
}

func leafTemplate(serial int64, cn string) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"Test Apple Inc."}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
}

func mustCert(t *testing.T, der []byte) *x509.Certificate {
	t.Helper()
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

// issueCert signs template for pub with the parent's key and returns DER.
func issueCert(t *testing.T, template, parent *x509.Certificate, pub any, parentKey crypto.Signer) []byte {
	t.Helper()
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, parentKey)
	require.NoError(t, err)
	return der
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()

	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	rootTmpl := caTemplate(1, "Test Root CA - G3")
	rootDER := issueCert(t, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	rootCert := mustCert(t, rootDER)

	interKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	interDER := issueCert(t, caTemplate(2, "Test WWDR Intermediate"), rootCert, &interKey.PublicKey, rootKey)
	interCert := mustCert(t, interDER)

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafDER := issueCert(t, leafTemplate(3, "Test StoreKit Signing"), interCert, &leafKey.PublicKey, interKey)
	leafCert := mustCert(t, leafDER)

	return &testPKI{
		rootCert:  rootCert,
		rootDER:   rootDER,
		interCert: interCert,
		interDER:  interDER,
		leafCert:  leafCert,
		leafDER:   leafDER,
		leafKey:   leafKey,
	}
}

// verifier returns a Verifier pre-seeded with this PKI's root, so tests
// never touch the network.
func (p *testPKI) verifier() *Verifier {
	return NewVerifier(StaticRoot{Cert: p.rootCert})
}

func (p *testPKI) x5c() []string {
	return []string{
		base64.StdEncoding.EncodeToString(p.leafDER),
		base64.StdEncoding.EncodeToString(p.interDER),
	}
}

// signToken mints a compact ES256 JWS over claims with the leaf key,
// embedding this PKI's x5c chain — the same shape StoreKit 2 produces.
func (p *testPKI) signToken(t *testing.T, claims jwt.MapClaims) string {
	return signTokenWithChain(t, p.leafKey, p.x5c(), claims)
}

func signTokenWithChain(t *testing.T, key *ecdsa.PrivateKey, x5c []string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["x5c"] = x5c
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

const (
	testAccountToken  = "7e2c5b64-9f0a-4d3c-8b1e-2a6f9c4d7e50"
	testTransactionID = "1000000123456789"
)

func sampleClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"appAccountToken":       testAccountToken,
		"originalTransactionId": testTransactionID,
		"transactionId":         "2000000987654321",
		"productId":             "com.rodrigocava.clawlink.pro.monthly",
		"bundleId":              "com.rodrigocava.clawlink",
		"purchaseDate":          1760000000000,
		"expiresDate":           1767225600000,
		"environment":           EnvironmentSandbox,
	}
}

// rsaPKI mirrors testPKI with an RSA root and intermediate, to exercise the
// PKCS#1 v1.5 chain link path.
type rsaPKI struct {
	rootCert  *x509.Certificate
	interCert *x509.Certificate
	interDER  []byte
	leafCert  *x509.Certificate
	leafDER   []byte
	leafKey   *ecdsa.PrivateKey
}

func newRSAPKI(t *testing.T) *rsaPKI {
	t.Helper()

	rootKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rootTmpl := caTemplate(10, "Test RSA Root CA")
	rootCert := mustCert(t, issueCert(t, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey))

	interKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	interDER := issueCert(t, caTemplate(11, "Test RSA Intermediate"), rootCert, &interKey.PublicKey, rootKey)
	interCert := mustCert(t, interDER)

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafDER := issueCert(t, leafTemplate(12, "Test RSA-chained Signing"), interCert, &leafKey.PublicKey, interKey)
	leafCert := mustCert(t, leafDER)

	return &rsaPKI{
		rootCert:  rootCert,
		interCert: interCert,
		interDER:  interDER,
		leafCert:  leafCert,
		leafDER:   leafDER,
		leafKey:   leafKey,
	}
}
