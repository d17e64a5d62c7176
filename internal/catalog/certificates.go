package catalog

import (
	"crypto/x509"
	"database/sql"
	"fmt"

	"github.com/certscope/certscope/internal/store"
)

// FindOrInsertCertificate stores a certificate if its fingerprint is not
// already known and returns the row id either way. Idempotent: the same
// DER bytes always resolve to the same id, concurrent inserters included
// (the unique fingerprint constraint decides the winner and the loser
// re-reads the winner's row).
func (c *Catalog) FindOrInsertCertificate(tx *sql.Tx, der []byte, parsed *x509.Certificate) (int64, error) {
	fp := store.Fingerprint(der)

	var id int64
	err := tx.QueryRow("SELECT id FROM certificates WHERE fingerprint = ?", fp).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("looking up fingerprint: %w", err)
	}

	cert := store.FromX509(parsed, der)
	if _, err := c.findOrInsertDn(tx, store.DnFromName(parsed.Subject), store.DnSubject); err != nil {
		return 0, err
	}
	if _, err := c.findOrInsertDn(tx, store.DnFromName(parsed.Issuer), store.DnIssuer); err != nil {
		return 0, err
	}

	res, err := tx.Exec(`
		INSERT INTO certificates
			(fingerprint, subject, issuer, subject_hash, issuer_hash, version,
			 self_signed, ca, key_algorithm, key_bits, signature_algorithm,
			 hash_algorithm, not_before, not_after, der, trusted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(fingerprint) DO NOTHING`,
		cert.Fingerprint, cert.Subject, cert.Issuer, cert.SubjectHash, cert.IssuerHash,
		cert.Version, cert.SelfSigned, cert.CA, cert.KeyAlgorithm, cert.KeyBits,
		cert.SignatureAlgorithm, cert.HashAlgorithm, cert.NotBefore, cert.NotAfter, der,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting certificate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports affected rows
		// Lost the race; the winner's row is authoritative.
		if err := tx.QueryRow("SELECT id FROM certificates WHERE fingerprint = ?", fp).Scan(&id); err != nil {
			return 0, fmt.Errorf("re-reading certificate after conflict: %w", err)
		}
		return id, nil
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting certificate id: %w", err)
	}

	for _, san := range store.SansFromCert(parsed) {
		_, err := tx.Exec(`
			INSERT INTO subject_alt_names (certificate_id, hash, type, value)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(certificate_id, hash) DO NOTHING`,
			id, san.Hash, san.Type, san.Value,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting SAN: %w", err)
		}
	}
	return id, nil
}

// findOrInsertDn stores a distinguished name once per (hash, type) and
// returns the hash. Identical subject or issuer names across certificates
// share one stored DN.
func (c *Catalog) findOrInsertDn(tx *sql.Tx, dn store.Dn, typ store.DnType) (string, error) {
	var exists int
	err := tx.QueryRow("SELECT 1 FROM dns WHERE hash = ? AND type = ? LIMIT 1", dn.Hash, typ).Scan(&exists)
	if err == nil {
		return dn.Hash, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("looking up DN: %w", err)
	}
	for _, a := range dn.Attributes {
		_, err := tx.Exec(`
			INSERT INTO dns (hash, type, key, value, ord) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(hash, type, ord) DO NOTHING`,
			dn.Hash, typ, a.Key, a.Value, a.Order,
		)
		if err != nil {
			return "", fmt.Errorf("inserting DN attribute: %w", err)
		}
	}
	return dn.Hash, nil
}

// CertificateByFingerprint looks up a stored certificate.
func (c *Catalog) CertificateByFingerprint(fp string) (*store.Certificate, error) {
	row := c.db.QueryRow(certColumns+" WHERE fingerprint = ?", fp)
	cert, err := scanCertificate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying certificate: %w", err)
	}
	return cert, nil
}

// SetTrusted flips the operator-asserted trust flag on a certificate.
func (c *Catalog) SetTrusted(fingerprint string, trusted bool) error {
	res, err := c.db.Exec("UPDATE certificates SET trusted = ? WHERE fingerprint = ?", trusted, fingerprint)
	if err != nil {
		return fmt.Errorf("updating trusted flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports affected rows
		return fmt.Errorf("no certificate with fingerprint %s", fingerprint)
	}
	return nil
}

// TrustedCAs returns every certificate flagged ca=1 and trusted=1, the
// anchor set for chain verification.
func (c *Catalog) TrustedCAs() ([]store.Certificate, error) {
	rows, err := c.db.Query(certColumns + " WHERE ca = 1 AND trusted = 1")
	if err != nil {
		return nil, fmt.Errorf("querying trusted CAs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query
	var cas []store.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning trusted CA: %w", err)
		}
		cas = append(cas, *cert)
	}
	return cas, rows.Err()
}

// Certificates returns the whole deduplicated inventory, expiring first.
func (c *Catalog) Certificates() ([]store.Certificate, error) {
	rows, err := c.db.Query(certColumns + " ORDER BY not_after ASC, fingerprint ASC")
	if err != nil {
		return nil, fmt.Errorf("querying certificates: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query
	var certs []store.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning certificate: %w", err)
		}
		certs = append(certs, *cert)
	}
	return certs, rows.Err()
}

const certColumns = `SELECT id, fingerprint, subject, issuer, subject_hash, issuer_hash,
	version, self_signed, ca, key_algorithm, key_bits, signature_algorithm,
	hash_algorithm, not_before, not_after, der, trusted FROM certificates`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (*store.Certificate, error) {
	var cert store.Certificate
	err := row.Scan(&cert.ID, &cert.Fingerprint, &cert.Subject, &cert.Issuer,
		&cert.SubjectHash, &cert.IssuerHash, &cert.Version, &cert.SelfSigned,
		&cert.CA, &cert.KeyAlgorithm, &cert.KeyBits, &cert.SignatureAlgorithm,
		&cert.HashAlgorithm, &cert.NotBefore, &cert.NotAfter, &cert.DER, &cert.Trusted)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}
