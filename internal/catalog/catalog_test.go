package catalog

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"database/sql"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/certscope/certscope/internal/addrspace"
	"github.com/certscope/certscope/internal/store"
)

func openMemory(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory db: %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // test cleanup
	return c
}

// makeCert generates a self-signed certificate for catalog tests.
func makeCert(t *testing.T, cn string, isCA bool) (*x509.Certificate, []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  isCA,
		BasicConstraintsValid: true,
		DNSNames:              []string{cn},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return cert, der
}

func testTarget(t *testing.T, ip string, port int, hostname string) store.Target {
	t.Helper()
	bin, err := addrspace.AddrToBinary(ip)
	if err != nil {
		t.Fatal(err)
	}
	return store.Target{Addr: bin, Port: port, Hostname: hostname}
}

func countRows(t *testing.T, c *Catalog, table string) int {
	t.Helper()
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func TestMigrate_Idempotent(t *testing.T) {
	c := openMemory(t)
	if err := migrate(c.db); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestFindOrInsertCertificate_Idempotent(t *testing.T) {
	c := openMemory(t)
	cert, der := makeCert(t, "dup.example", false)

	var first, second int64
	if err := c.WithTx(func(tx *sql.Tx) error {
		var err error
		first, err = c.FindOrInsertCertificate(tx, der, cert)
		return err
	}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := c.WithTx(func(tx *sql.Tx) error {
		var err error
		second, err = c.FindOrInsertCertificate(tx, der, cert)
		return err
	}); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	if first != second {
		t.Errorf("ids differ: %d vs %d", first, second)
	}
	if n := countRows(t, c, "certificates"); n != 1 {
		t.Errorf("certificate rows = %d, want 1", n)
	}
	if n := countRows(t, c, "subject_alt_names"); n != 1 {
		t.Errorf("SAN rows = %d, want 1 (no duplicates on re-insert)", n)
	}
}

func TestFindOrInsertCertificate_ConcurrentSameFingerprint(t *testing.T) {
	c := openMemory(t)
	cert, der := makeCert(t, "race.example", false)

	ids := make([]int64, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.WithTx(func(tx *sql.Tx) error { //nolint:errcheck // asserted via ids below
				id, err := c.FindOrInsertCertificate(tx, der, cert)
				ids[i] = id
				return err
			})
		}(i)
	}
	wg.Wait()

	for i, id := range ids {
		if id != ids[0] {
			t.Errorf("writer %d got id %d, want %d", i, id, ids[0])
		}
	}
	if n := countRows(t, c, "certificates"); n != 1 {
		t.Errorf("certificate rows = %d, want 1", n)
	}
}

func TestFindOrInsertDn_SharedAcrossCertificates(t *testing.T) {
	c := openMemory(t)
	certA, derA := makeCert(t, "shared-dn.example", false)
	certB, derB := makeCert(t, "shared-dn.example", false) // same subject, different key

	if err := c.WithTx(func(tx *sql.Tx) error {
		if _, err := c.FindOrInsertCertificate(tx, derA, certA); err != nil {
			return err
		}
		_, err := c.FindOrInsertCertificate(tx, derB, certB)
		return err
	}); err != nil {
		t.Fatal(err)
	}

	if n := countRows(t, c, "certificates"); n != 2 {
		t.Fatalf("certificate rows = %d, want 2", n)
	}
	// One CN attribute per (hash, type); identical subjects share rows.
	var dnRows int
	if err := c.db.QueryRow("SELECT COUNT(DISTINCT hash) FROM dns WHERE type = 'subject'").Scan(&dnRows); err != nil {
		t.Fatal(err)
	}
	if dnRows != 1 {
		t.Errorf("distinct subject DN hashes = %d, want 1", dnRows)
	}
}

func TestTargetChainLifecycle(t *testing.T) {
	c := openMemory(t)
	cert, der := makeCert(t, "chain.example", false)
	target := testTarget(t, "10.0.0.2", 443, "")
	now := time.Now().UTC()

	var chainID int64
	if err := c.WithTx(func(tx *sql.Tx) error {
		targetID, err := c.UpsertTarget(tx, target, now)
		if err != nil {
			return err
		}
		chainID, err = c.InsertChain(tx, targetID, 1, now)
		if err != nil {
			return err
		}
		if err := c.SetLatestChain(tx, targetID, chainID); err != nil {
			return err
		}
		certID, err := c.FindOrInsertCertificate(tx, der, cert)
		if err != nil {
			return err
		}
		return c.InsertChainLink(tx, chainID, 0, certID)
	}); err != nil {
		t.Fatal(err)
	}

	got, err := c.LatestChainID(target)
	if err != nil {
		t.Fatal(err)
	}
	if got != chainID {
		t.Errorf("latest chain = %d, want %d", got, chainID)
	}

	certs, err := c.ChainCertificates(chainID)
	if err != nil {
		t.Fatal(err)
	}
	if len(certs) != 1 || certs[0].Subject != "chain.example" {
		t.Errorf("chain certs = %+v", certs)
	}

	// A failed probe clears the pointer.
	if err := c.WithTx(func(tx *sql.Tx) error {
		targetID, err := c.UpsertTarget(tx, target, now)
		if err != nil {
			return err
		}
		return c.ClearLatestChain(tx, targetID)
	}); err != nil {
		t.Fatal(err)
	}
	got, err = c.LatestChainID(target)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("latest chain after clear = %d, want 0", got)
	}

	// Upserting the same triple twice keeps one row.
	if n := countRows(t, c, "targets"); n != 1 {
		t.Errorf("target rows = %d, want 1", n)
	}
}

func TestUnverifiedChainsAndValidity(t *testing.T) {
	c := openMemory(t)
	cert, der := makeCert(t, "verify.example", false)
	target := testTarget(t, "10.0.0.9", 8443, "")
	now := time.Now().UTC()

	var chainID int64
	if err := c.WithTx(func(tx *sql.Tx) error {
		targetID, err := c.UpsertTarget(tx, target, now)
		if err != nil {
			return err
		}
		chainID, err = c.InsertChain(tx, targetID, 1, now)
		if err != nil {
			return err
		}
		if err := c.SetLatestChain(tx, targetID, chainID); err != nil {
			return err
		}
		certID, err := c.FindOrInsertCertificate(tx, der, cert)
		if err != nil {
			return err
		}
		return c.InsertChainLink(tx, chainID, 0, certID)
	}); err != nil {
		t.Fatal(err)
	}

	chains, err := c.UnverifiedChains()
	if err != nil {
		t.Fatal(err)
	}
	if len(chains) != 1 || chains[0].ID != chainID {
		t.Fatalf("unverified chains = %+v", chains)
	}

	if err := c.SetChainValidity(chainID, false, "unable to get local issuer certificate"); err != nil {
		t.Fatal(err)
	}
	chains, err = c.UnverifiedChains()
	if err != nil {
		t.Fatal(err)
	}
	// Still a candidate: invalid chains are re-examined.
	if len(chains) != 1 || !chains[0].Verified || chains[0].Valid {
		t.Fatalf("after invalid: %+v", chains)
	}
	if chains[0].InvalidReason == "" {
		t.Error("expected a stored invalid reason")
	}

	if err := c.SetChainValidity(chainID, true, "stale reason"); err != nil {
		t.Fatal(err)
	}
	chains, err = c.UnverifiedChains()
	if err != nil {
		t.Fatal(err)
	}
	if len(chains) != 0 {
		t.Fatalf("valid chain still a candidate: %+v", chains)
	}
	var reason string
	if err := c.db.QueryRow("SELECT invalid_reason FROM certificate_chains WHERE id = ?", chainID).Scan(&reason); err != nil {
		t.Fatal(err)
	}
	if reason != "" {
		t.Errorf("invalid_reason = %q, want cleared", reason)
	}
}

func TestTrustedCAs(t *testing.T) {
	c := openMemory(t)
	ca, caDER := makeCert(t, "root.example", true)
	leaf, leafDER := makeCert(t, "leaf.example", false)

	if err := c.WithTx(func(tx *sql.Tx) error {
		if _, err := c.FindOrInsertCertificate(tx, caDER, ca); err != nil {
			return err
		}
		_, err := c.FindOrInsertCertificate(tx, leafDER, leaf)
		return err
	}); err != nil {
		t.Fatal(err)
	}

	cas, err := c.TrustedCAs()
	if err != nil {
		t.Fatal(err)
	}
	if len(cas) != 0 {
		t.Fatalf("expected no trusted CAs before operator action, got %d", len(cas))
	}

	if err := c.SetTrusted(store.Fingerprint(caDER), true); err != nil {
		t.Fatal(err)
	}
	cas, err = c.TrustedCAs()
	if err != nil {
		t.Fatal(err)
	}
	if len(cas) != 1 || cas[0].Subject != "root.example" {
		t.Fatalf("trusted CAs = %+v", cas)
	}

	// The leaf is not a CA; trusting it must not add it to the anchor set.
	if err := c.SetTrusted(store.Fingerprint(leafDER), true); err != nil {
		t.Fatal(err)
	}
	cas, err = c.TrustedCAs()
	if err != nil {
		t.Fatal(err)
	}
	if len(cas) != 1 {
		t.Fatalf("trusted CA count = %d, want 1", len(cas))
	}
}

func TestSetTrusted_UnknownFingerprint(t *testing.T) {
	c := openMemory(t)
	if err := c.SetTrusted("deadbeef", true); err == nil {
		t.Error("expected error for unknown fingerprint")
	}
}

func TestJobsAndRuns(t *testing.T) {
	c := openMemory(t)

	jobID, err := c.UpsertJob(store.Job{Name: "dmz", CIDRs: "10.0.0.0/24", Ports: "443", Author: "ops"})
	if err != nil {
		t.Fatal(err)
	}
	again, err := c.UpsertJob(store.Job{Name: "dmz", CIDRs: "10.0.0.0/23", Ports: "443,8443", Author: "ops"})
	if err != nil {
		t.Fatal(err)
	}
	if jobID != again {
		t.Errorf("upsert created a second job: %d vs %d", jobID, again)
	}
	job, err := c.JobByName("dmz")
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.CIDRs != "10.0.0.0/23" {
		t.Fatalf("job = %+v", job)
	}

	started := time.Now().UTC().Truncate(time.Second)
	runID, err := c.CreateJobRun(jobID, 256, started)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateJobRunProgress(runID, 100); err != nil {
		t.Fatal(err)
	}
	run, err := c.JobRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	if run.FinishedTargets != 100 || !run.EndedAt.IsZero() {
		t.Errorf("mid-run state: %+v", run)
	}

	ended := started.Add(time.Minute)
	if err := c.FinishJobRun(runID, 256, ended); err != nil {
		t.Fatal(err)
	}
	run, err = c.JobRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	if run.FinishedTargets != 256 || run.EndedAt.IsZero() {
		t.Errorf("finished state: %+v", run)
	}
}

func TestSchedules(t *testing.T) {
	c := openMemory(t)
	jobID, err := c.UpsertJob(store.Job{Name: "nightly"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.UpsertSchedule(store.Schedule{
		JobID: jobID, Name: "nightly-0300", Frequency: "0 3 * * *", FullScan: true,
	}); err != nil {
		t.Fatal(err)
	}
	scheds, err := c.Schedules()
	if err != nil {
		t.Fatal(err)
	}
	if len(scheds) != 1 || scheds[0].Frequency != "0 3 * * *" || !scheds[0].FullScan {
		t.Fatalf("schedules = %+v", scheds)
	}
}

func TestRescanTargets(t *testing.T) {
	c := openMemory(t)
	now := time.Now().UTC()
	old := testTarget(t, "10.0.0.1", 443, "")
	fresh := testTarget(t, "10.0.0.2", 443, "")

	if err := c.WithTx(func(tx *sql.Tx) error {
		if _, err := c.UpsertTarget(tx, old, now.Add(-48*time.Hour)); err != nil {
			return err
		}
		_, err := c.UpsertTarget(tx, fresh, now)
		return err
	}); err != nil {
		t.Fatal(err)
	}

	all, err := c.RescanTargets(time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all targets = %d, want 2", len(all))
	}

	stale, err := c.RescanTargets(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 1 || stale[0].IPString() != "10.0.0.1" {
		t.Fatalf("stale targets = %+v", stale)
	}
}

func TestTargetStatuses(t *testing.T) {
	c := openMemory(t)
	cert, der := makeCert(t, "status.example", false)
	target := testTarget(t, "192.0.2.10", 443, "status.example")
	now := time.Now().UTC()

	if err := c.WithTx(func(tx *sql.Tx) error {
		targetID, err := c.UpsertTarget(tx, target, now)
		if err != nil {
			return err
		}
		chainID, err := c.InsertChain(tx, targetID, 1, now)
		if err != nil {
			return err
		}
		if err := c.SetLatestChain(tx, targetID, chainID); err != nil {
			return err
		}
		certID, err := c.FindOrInsertCertificate(tx, der, cert)
		if err != nil {
			return err
		}
		return c.InsertChainLink(tx, chainID, 0, certID)
	}); err != nil {
		t.Fatal(err)
	}

	byHost, err := c.TargetStatuses("status.example", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(byHost) != 1 || !byHost[0].HasChain || byHost[0].NotAfter.IsZero() {
		t.Fatalf("status by hostname = %+v", byHost)
	}

	byIP, err := c.TargetStatuses("192.0.2.10", 443)
	if err != nil {
		t.Fatal(err)
	}
	if len(byIP) != 1 {
		t.Fatalf("status by IP = %+v", byIP)
	}

	none, err := c.TargetStatuses("absent.example", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no statuses, got %+v", none)
	}
}
