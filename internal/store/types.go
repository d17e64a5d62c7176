// Package store defines the data model shared by the scanner, catalog and
// chain verifier.
package store

import (
	"fmt"
	"net"
	"time"

	"github.com/certscope/certscope/internal/addrspace"
)

// Target identifies one probe endpoint. Unique per (ip, port, hostname);
// the hostname is the SNI name presented during the handshake, empty when
// none is configured.
type Target struct {
	Addr     addrspace.Binary
	Port     int
	Hostname string
}

// IPString returns the textual address.
func (t Target) IPString() string {
	return addrspace.BinaryToAddr(t.Addr)
}

// HostPort returns the dial address, bracketing IPv6 literals.
func (t Target) HostPort() string {
	return net.JoinHostPort(t.IPString(), fmt.Sprintf("%d", t.Port))
}

func (t Target) String() string {
	if t.Hostname == "" {
		return t.HostPort()
	}
	return t.HostPort() + " sni=" + t.Hostname
}

// Certificate is the canonical, deduplicated representation of one X.509
// certificate, identified by the SHA-256 fingerprint of its DER encoding.
type Certificate struct {
	ID                 int64
	Fingerprint        string
	Subject            string
	Issuer             string
	SubjectHash        string
	IssuerHash         string
	Version            int
	SelfSigned         bool
	CA                 bool
	KeyAlgorithm       string
	KeyBits            int
	SignatureAlgorithm string
	HashAlgorithm      string
	NotBefore          time.Time
	NotAfter           time.Time
	DER                []byte
	Trusted            bool
}

// CertificateChain is one chain observation for a target. Validity fields
// are written by the verifier; everything else is immutable after insert.
type CertificateChain struct {
	ID            int64
	TargetID      int64
	Length        int
	Verified      bool
	Valid         bool
	InvalidReason string
	CreatedAt     time.Time
}

// Job is a named scan specification. CIDRs, Ports and ExcludeTargets are
// comma-separated lists as written in the configuration file.
type Job struct {
	ID             int64
	Name           string
	CIDRs          string
	Ports          string
	ExcludeTargets string
	Author         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Schedule is a recurring trigger bound to a job.
type Schedule struct {
	ID            int64
	JobID         int64
	Name          string
	Frequency     string
	FullScan      bool
	Rescan        bool
	SinceLastScan string
}

// JobRun is one execution record, written incrementally for progress
// observability. EndedAt stays zero while the run is in flight.
type JobRun struct {
	ID              int64
	JobID           int64
	TotalTargets    int64
	FinishedTargets int64
	StartedAt       time.Time
	EndedAt         time.Time
}
