// Package probe performs TLS handshake probing for certificate collection.
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"time"

	"github.com/certscope/certscope/internal/store"
)

// DialContextFunc is the signature used to establish TCP connections,
// injectable for tests and alternate transports.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DefaultTimeout bounds one probe attempt end to end.
const DefaultTimeout = 5 * time.Second

// Result holds the outcome of one probe attempt. Chain preserves the peer
// certificates exactly as presented, leaf first.
type Result struct {
	Chain       []*x509.Certificate
	ProbeErr    string
	TLSVersion  uint16
	CipherSuite uint16
	ProbeOK     bool
}

// Func is the probe entry point the scanner depends on, injectable so
// tests can fake the network.
type Func func(ctx context.Context, target store.Target) Result

// Probe connects to the target and captures the presented certificate
// chain. Verification is deliberately disabled: the probe collects, it
// does not judge. Stored chains are validated later against the
// operator's trust store.
func Probe(ctx context.Context, target store.Target) Result {
	return ProbeWithDialer(ctx, target, (&net.Dialer{}).DialContext)
}

// ProbeWithDialer is like Probe but uses the provided dial function for
// the underlying TCP connection.
func ProbeWithDialer(ctx context.Context, target store.Target, dialFn DialContextFunc) Result {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	rawConn, err := dialFn(ctx, "tcp", target.HostPort())
	if err != nil {
		return Result{ProbeErr: err.Error()}
	}

	tlsConn := tls.Client(rawConn, &tls.Config{
		ServerName:         target.Hostname,
		InsecureSkipVerify: true, //nolint:gosec // collection probe, trust is evaluated separately
	})
	if hsErr := tlsConn.HandshakeContext(ctx); hsErr != nil {
		rawConn.Close() //nolint:errcheck // best-effort cleanup on handshake failure
		return Result{ProbeErr: hsErr.Error()}
	}

	state := tlsConn.ConnectionState()
	tlsConn.Close() //nolint:errcheck // read-only probe, close error is unactionable

	if len(state.PeerCertificates) == 0 {
		return Result{ProbeErr: "no peer certificates presented"}
	}
	return Result{
		Chain:       state.PeerCertificates,
		TLSVersion:  state.Version,
		CipherSuite: state.CipherSuite,
		ProbeOK:     true,
	}
}
