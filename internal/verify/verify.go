// Package verify evaluates stored certificate chains against the
// operator's trust store.
package verify

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/certscope/certscope/internal/catalog"
)

// ErrEmptyTrustStore is returned when no CA certificate has been marked
// trusted. Verifying against an empty store would mark every chain
// invalid, which is never what the operator meant.
var ErrEmptyTrustStore = errors.New("trust store is empty, mark CA certificates trusted first")

// Verifier walks chains the catalog has not yet verified and records
// whether they anchor to a trusted CA.
type Verifier struct {
	cat   *catalog.Catalog
	nowFn func() time.Time
}

// New builds a verifier over the given catalog.
func New(cat *catalog.Catalog) *Verifier {
	return &Verifier{cat: cat, nowFn: time.Now}
}

// Run verifies every chain that is unverified or was last found invalid.
// Previously invalid chains are re-examined because the trust store may
// have grown since. Returns the number of chains examined.
func (v *Verifier) Run(ctx context.Context) (int, error) {
	roots, err := v.trustPool()
	if err != nil {
		return 0, err
	}

	chains, err := v.cat.UnverifiedChains()
	if err != nil {
		return 0, fmt.Errorf("loading chains: %w", err)
	}

	examined := 0
	for _, chain := range chains {
		if err := ctx.Err(); err != nil {
			return examined, err
		}
		// A failure on one chain leaves its validity unchanged and the
		// pass moves on.
		if err := v.verifyOne(chain.ID, roots); err != nil {
			slog.Error("verifying chain", "chain", chain.ID, "err", err)
			continue
		}
		examined++
	}
	return examined, nil
}

// verifyOne validates a single chain as presented: the leaf is verified
// with the remaining certificates as intermediates, anchored only by the
// trusted CA pool.
func (v *Verifier) verifyOne(chainID int64, roots *x509.CertPool) error {
	stored, err := v.cat.ChainCertificates(chainID)
	if err != nil {
		return fmt.Errorf("loading chain %d: %w", chainID, err)
	}
	if len(stored) == 0 {
		return v.cat.SetChainValidity(chainID, false, "chain has no certificates")
	}

	parsed := make([]*x509.Certificate, len(stored))
	for i, c := range stored {
		cert, err := x509.ParseCertificate(c.DER)
		if err != nil {
			slog.Warn("stored certificate no longer parses", "chain", chainID, "fingerprint", c.Fingerprint, "err", err)
			return v.cat.SetChainValidity(chainID, false, fmt.Sprintf("certificate %s does not parse", c.Fingerprint))
		}
		parsed[i] = cert
	}

	intermediates := x509.NewCertPool()
	for _, cert := range parsed[1:] {
		intermediates.AddCert(cert)
	}
	_, err = parsed[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   v.nowFn(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return v.cat.SetChainValidity(chainID, false, err.Error())
	}
	return v.cat.SetChainValidity(chainID, true, "")
}

// trustPool loads the trusted CAs into a cert pool.
func (v *Verifier) trustPool() (*x509.CertPool, error) {
	cas, err := v.cat.TrustedCAs()
	if err != nil {
		return nil, fmt.Errorf("loading trust store: %w", err)
	}
	if len(cas) == 0 {
		return nil, ErrEmptyTrustStore
	}
	pool := x509.NewCertPool()
	for _, ca := range cas {
		cert, err := x509.ParseCertificate(ca.DER)
		if err != nil {
			return nil, fmt.Errorf("parsing trusted CA %s: %w", ca.Fingerprint, err)
		}
		pool.AddCert(cert)
	}
	return pool, nil
}

// TrustBundlePEM renders the trusted CAs as a concatenated PEM bundle,
// suitable for feeding to other tools.
func TrustBundlePEM(cat *catalog.Catalog) ([]byte, error) {
	cas, err := cat.TrustedCAs()
	if err != nil {
		return nil, fmt.Errorf("loading trust store: %w", err)
	}
	if len(cas) == 0 {
		return nil, ErrEmptyTrustStore
	}
	var out []byte
	for _, ca := range cas {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.DER})...)
	}
	return out, nil
}
