// storekit/anchor.go
package storekit

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// Apple Root CA G3 — ECDSA P-384 root. Fingerprint is published at
	// https://www.apple.com/certificateauthority/ and pinned here on
	// purpose: making it configurable would defeat the trust model.
	AppleRootCAG3URL    = "https://www.apple.com/certificateauthority/AppleRootCA-G3.cer"
	AppleRootCAG3SHA256 = "63343abfb89a6a03ebb57e2b7b5338e9725e932753e2c18ce075d42cc6fa5870"

	anchorFetchTimeout = 10 * time.Second
	anchorMaxBodySize  = 1 << 20
)

// RootSource supplies the trust anchor the certificate chain must trace to.
type RootSource interface {
	Root(ctx context.Context) (*x509.Certificate, error)
}

// StaticRoot is a RootSource backed by an in-memory certificate. Tests and
// air-gapped deployments use it to skip the network bootstrap.
type StaticRoot struct {
	Cert *x509.Certificate
}

func (s StaticRoot) Root(context.Context) (*x509.Certificate, error) {
	return s.Cert, nil
}

// RootCache fetches a DER root certificate once, verifies its SHA-256
// fingerprint against the pin, and serves it from memory for the rest of
// the process lifetime. Concurrent first calls coalesce onto a single
// fetch; a failed fetch caches nothing, so a later call retries.
type RootCache struct {
	url         string
	fingerprint []byte
	client      *http.Client

	group singleflight.Group
	mu    sync.RWMutex
	cert  *x509.Certificate
}

// NewRootCache builds a cache pinned to the SHA-256 fingerprint given as a
// lowercase hex string. An unparseable pin is a programming error.
func NewRootCache(url, fingerprintHex string) *RootCache {
	fp, err := hex.DecodeString(fingerprintHex)
	if err != nil || len(fp) != sha256.Size {
		panic("storekit: invalid root fingerprint pin: " + fingerprintHex)
	}
	return &RootCache{
		url:         url,
		fingerprint: fp,
		client:      &http.Client{Timeout: anchorFetchTimeout},
	}
}

var appleRoots = NewRootCache(AppleRootCAG3URL, AppleRootCAG3SHA256)

// AppleRoots returns the process-wide cache for Apple Root CA G3. Every
// verifier in the process shares it, so the root is fetched at most once.
func AppleRoots() *RootCache {
	return appleRoots
}

// Root returns the pinned certificate, fetching and verifying it on first
// use. Safe for concurrent callers.
func (c *RootCache) Root(ctx context.Context) (*x509.Certificate, error) {
	c.mu.RLock()
	cert := c.cert
	c.mu.RUnlock()
	if cert != nil {
		return cert, nil
	}

	v, err, _ := c.group.Do("root", func() (any, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*x509.Certificate), nil
}

func (c *RootCache) fetch(ctx context.Context) (*x509.Certificate, error) {
	// A waiter that lost the race to an already-completed fetch lands here.
	c.mu.RLock()
	cached := c.cert
	c.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	Logger.Debugf("[RootCache] Fetching trust anchor from %s", c.url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, verificationErr(ErrCodeAnchorFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		Logger.WithError(err).Warn("[RootCache] Trust anchor fetch failed")
		return nil, verificationErr(ErrCodeAnchorFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		Logger.Warnf("[RootCache] Trust anchor fetch returned status %d", resp.StatusCode)
		return nil, verificationErr(ErrCodeAnchorFetchFailed, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	der, err := io.ReadAll(io.LimitReader(resp.Body, anchorMaxBodySize))
	if err != nil {
		return nil, verificationErr(ErrCodeAnchorFetchFailed, err)
	}

	// Pin check runs over the raw DER before anything is cached. A mismatch
	// means a compromised fetch path or a stale pin, never a bad token.
	sum := sha256.Sum256(der)
	if subtle.ConstantTimeCompare(sum[:], c.fingerprint) != 1 {
		Logger.Errorf("[RootCache] Trust anchor fingerprint mismatch: got %x", sum)
		return nil, verificationErr(ErrCodeAnchorFingerprintMismatch, fmt.Errorf("got %x", sum))
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, verificationErr(ErrCodeAnchorFetchFailed, err)
	}

	c.mu.Lock()
	c.cert = cert
	c.mu.Unlock()
	Logger.Infof("[RootCache] Trust anchor cached: %s", cert.Subject.CommonName)
	return cert, nil
}
