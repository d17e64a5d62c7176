package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/certscope/certscope/internal/addrspace"
	"github.com/certscope/certscope/internal/store"
)

// UpsertTarget finds or creates the target row for (ip, port, hostname)
// and stamps its last_scan time.
func (c *Catalog) UpsertTarget(tx *sql.Tx, t store.Target, now time.Time) (int64, error) {
	_, err := tx.Exec(`
		INSERT INTO targets (ip, port, hostname, last_scan) VALUES (?, ?, ?, ?)
		ON CONFLICT(ip, port, hostname) DO UPDATE SET last_scan = excluded.last_scan`,
		t.Addr[:], t.Port, t.Hostname, now,
	)
	if err != nil {
		return 0, fmt.Errorf("upserting target: %w", err)
	}
	var id int64
	err = tx.QueryRow("SELECT id FROM targets WHERE ip = ? AND port = ? AND hostname = ?",
		t.Addr[:], t.Port, t.Hostname).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("reading target id: %w", err)
	}
	return id, nil
}

// InsertChain records one observed chain for a target.
func (c *Catalog) InsertChain(tx *sql.Tx, targetID int64, length int, now time.Time) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO certificate_chains (target_id, length, created_at) VALUES (?, ?, ?)",
		targetID, length, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting chain: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting chain id: %w", err)
	}
	return id, nil
}

// InsertChainLink links one certificate into a chain at the given
// position. Order 0 is the leaf as presented by the TLS stack.
func (c *Catalog) InsertChainLink(tx *sql.Tx, chainID int64, ord int, certID int64) error {
	_, err := tx.Exec(`
		INSERT INTO certificate_chain_links (certificate_chain_id, ord, certificate_id)
		VALUES (?, ?, ?)
		ON CONFLICT(certificate_chain_id, ord, certificate_id) DO NOTHING`,
		chainID, ord, certID,
	)
	if err != nil {
		return fmt.Errorf("inserting chain link: %w", err)
	}
	return nil
}

// SetLatestChain points a target at its most recent chain.
func (c *Catalog) SetLatestChain(tx *sql.Tx, targetID, chainID int64) error {
	_, err := tx.Exec("UPDATE targets SET latest_certificate_chain_id = ? WHERE id = ?", chainID, targetID)
	if err != nil {
		return fmt.Errorf("setting latest chain: %w", err)
	}
	return nil
}

// ClearLatestChain nulls a target's latest chain pointer, the signal that
// the target is currently not presenting a chain.
func (c *Catalog) ClearLatestChain(tx *sql.Tx, targetID int64) error {
	_, err := tx.Exec("UPDATE targets SET latest_certificate_chain_id = NULL WHERE id = ?", targetID)
	if err != nil {
		return fmt.Errorf("clearing latest chain: %w", err)
	}
	return nil
}

// LatestChainID returns the target's latest chain id, or 0 when unset.
func (c *Catalog) LatestChainID(t store.Target) (int64, error) {
	var id sql.NullInt64
	err := c.db.QueryRow(
		"SELECT latest_certificate_chain_id FROM targets WHERE ip = ? AND port = ? AND hostname = ?",
		t.Addr[:], t.Port, t.Hostname).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying latest chain: %w", err)
	}
	return id.Int64, nil
}

// UnverifiedChains returns every chain that has never been verified or
// was last found invalid, restricted to chains still referenced as some
// target's latest.
func (c *Catalog) UnverifiedChains() ([]store.CertificateChain, error) {
	rows, err := c.db.Query(`
		SELECT ch.id, ch.target_id, ch.length, ch.verified, ch.valid, ch.invalid_reason, ch.created_at
		FROM certificate_chains ch
		JOIN targets t ON t.latest_certificate_chain_id = ch.id
		WHERE ch.verified = 0 OR ch.valid = 0`)
	if err != nil {
		return nil, fmt.Errorf("querying unverified chains: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query
	var chains []store.CertificateChain
	for rows.Next() {
		var ch store.CertificateChain
		if err := rows.Scan(&ch.ID, &ch.TargetID, &ch.Length, &ch.Verified, &ch.Valid, &ch.InvalidReason, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chain: %w", err)
		}
		chains = append(chains, ch)
	}
	return chains, rows.Err()
}

// ChainCertificates returns a chain's certificates leaf-first (ascending
// stored order).
func (c *Catalog) ChainCertificates(chainID int64) ([]store.Certificate, error) {
	rows, err := c.db.Query(`
		SELECT c.id, c.fingerprint, c.subject, c.issuer, c.subject_hash, c.issuer_hash,
		       c.version, c.self_signed, c.ca, c.key_algorithm, c.key_bits,
		       c.signature_algorithm, c.hash_algorithm, c.not_before, c.not_after,
		       c.der, c.trusted
		FROM certificate_chain_links l
		JOIN certificates c ON c.id = l.certificate_id
		WHERE l.certificate_chain_id = ?
		ORDER BY l.ord ASC`, chainID)
	if err != nil {
		return nil, fmt.Errorf("querying chain certificates: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query
	var certs []store.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chain certificate: %w", err)
		}
		certs = append(certs, *cert)
	}
	return certs, rows.Err()
}

// SetChainValidity records a verification outcome. Success clears the
// invalid reason; failure stores the first reported deficiency.
func (c *Catalog) SetChainValidity(chainID int64, valid bool, reason string) error {
	if valid {
		reason = ""
	}
	_, err := c.db.Exec(
		"UPDATE certificate_chains SET verified = 1, valid = ?, invalid_reason = ? WHERE id = ?",
		valid, reason, chainID,
	)
	if err != nil {
		return fmt.Errorf("updating chain validity: %w", err)
	}
	return nil
}

// RescanTargets returns known targets for rescan-only runs. A non-zero
// before time restricts the set to targets last scanned earlier than it.
func (c *Catalog) RescanTargets(before time.Time) ([]store.Target, error) {
	query := "SELECT ip, port, hostname FROM targets"
	args := []any{}
	if !before.IsZero() {
		query += " WHERE last_scan IS NULL OR last_scan < ?"
		args = append(args, before)
	}
	rows, err := c.db.Query(query+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("querying rescan targets: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query
	var targets []store.Target
	for rows.Next() {
		var (
			ip       []byte
			port     int
			hostname string
		)
		if err := rows.Scan(&ip, &port, &hostname); err != nil {
			return nil, fmt.Errorf("scanning target: %w", err)
		}
		var t store.Target
		copy(t.Addr[:], ip)
		t.Port = port
		t.Hostname = hostname
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// TargetStatus is the read-only view the health-check surface consumes:
// the latest chain's validity and the leaf's validity window.
type TargetStatus struct {
	Target        store.Target
	HasChain      bool
	Verified      bool
	Valid         bool
	InvalidReason string
	NotBefore     time.Time
	NotAfter      time.Time
}

// TargetStatuses returns the latest-chain status for all targets matching
// host (an IP literal or a hostname) and, when non-zero, port.
func (c *Catalog) TargetStatuses(host string, port int) ([]TargetStatus, error) {
	query := `
		SELECT t.ip, t.port, t.hostname, t.latest_certificate_chain_id,
		       ch.verified, ch.valid, ch.invalid_reason, leaf.not_before, leaf.not_after
		FROM targets t
		LEFT JOIN certificate_chains ch ON ch.id = t.latest_certificate_chain_id
		LEFT JOIN certificate_chain_links l ON l.certificate_chain_id = ch.id AND l.ord = 0
		LEFT JOIN certificates leaf ON leaf.id = l.certificate_id
		WHERE (t.hostname = ? OR t.ip = ?)`
	var ipArg []byte
	if bin, err := addrspace.AddrToBinary(host); err == nil {
		ipArg = bin[:]
	}
	args := []any{host, ipArg}
	if port > 0 {
		query += " AND t.port = ?"
		args = append(args, port)
	}
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying target status: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query
	var out []TargetStatus
	for rows.Next() {
		var (
			st       TargetStatus
			ip       []byte
			chainID  sql.NullInt64
			verified sql.NullBool
			valid    sql.NullBool
			reason   sql.NullString
			nb, na   sql.NullTime
		)
		if err := rows.Scan(&ip, &st.Target.Port, &st.Target.Hostname, &chainID,
			&verified, &valid, &reason, &nb, &na); err != nil {
			return nil, fmt.Errorf("scanning target status: %w", err)
		}
		copy(st.Target.Addr[:], ip)
		st.HasChain = chainID.Valid
		st.Verified = verified.Bool
		st.Valid = valid.Bool
		st.InvalidReason = reason.String
		st.NotBefore = nb.Time
		st.NotAfter = na.Time
		out = append(out, st)
	}
	return out, rows.Err()
}
