package store

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint returns the hex SHA-256 of a certificate's DER encoding, the
// content-addressed identity used for deduplication.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// DnAttribute is one (key, value) pair of a distinguished name, with its
// position in the original attribute sequence.
type DnAttribute struct {
	Key   string
	Value string
	Order int
}

// Dn is a parsed subject or issuer name together with the hash of its
// canonical form.
type Dn struct {
	Hash       string
	Attributes []DnAttribute
}

// DnType separates the subject and issuer namespaces in the catalog.
type DnType string

const (
	DnSubject DnType = "subject"
	DnIssuer  DnType = "issuer"
)

var oidKeys = map[string]string{
	"2.5.4.3":                    "CN",
	"2.5.4.5":                    "serialNumber",
	"2.5.4.6":                    "C",
	"2.5.4.7":                    "L",
	"2.5.4.8":                    "ST",
	"2.5.4.9":                    "street",
	"2.5.4.10":                   "O",
	"2.5.4.11":                   "OU",
	"2.5.4.17":                   "postalCode",
	"1.2.840.113549.1.9.1":       "emailAddress",
	"0.9.2342.19200300.100.1.1":  "UID",
	"0.9.2342.19200300.100.1.25": "DC",
}

// DnFromName parses a pkix.Name preserving attribute order. The hash is
// the SHA-256 of the concatenation of "key=value, " per attribute; the
// delimiter is deliberately not escaped inside values, matching the
// canonical form used for subject_hash/issuer_hash linkage.
func DnFromName(name pkix.Name) Dn {
	attrs := make([]DnAttribute, 0, len(name.Names))
	var canon strings.Builder
	for i, atv := range name.Names {
		key := atv.Type.String()
		if short, ok := oidKeys[key]; ok {
			key = short
		}
		val, ok := atv.Value.(string)
		if !ok {
			// Rare non-string attributes still need a distinct encoding,
			// or two different names could hash identically.
			val = fmt.Sprintf("%v", atv.Value)
		}
		attrs = append(attrs, DnAttribute{Key: key, Value: val, Order: i})
		canon.WriteString(key)
		canon.WriteString("=")
		canon.WriteString(val)
		canon.WriteString(", ")
	}
	sum := sha256.Sum256([]byte(canon.String()))
	return Dn{Hash: hex.EncodeToString(sum[:]), Attributes: attrs}
}

// SubjectAltName is one SAN entry, deduplicated per certificate by the
// hash of "type=value".
type SubjectAltName struct {
	Type  string
	Value string
	Hash  string
}

func newSAN(typ, value string) SubjectAltName {
	sum := sha256.Sum256([]byte(typ + "=" + value))
	return SubjectAltName{Type: typ, Value: value, Hash: hex.EncodeToString(sum[:])}
}

// SansFromCert extracts all subject alternative names of a certificate.
func SansFromCert(c *x509.Certificate) []SubjectAltName {
	var sans []SubjectAltName
	for _, d := range c.DNSNames {
		sans = append(sans, newSAN("DNS", d))
	}
	for _, ip := range c.IPAddresses {
		sans = append(sans, newSAN("IP", ip.String()))
	}
	for _, e := range c.EmailAddresses {
		sans = append(sans, newSAN("email", e))
	}
	for _, u := range c.URIs {
		sans = append(sans, newSAN("URI", u.String()))
	}
	return sans
}

// FromX509 derives the catalog representation of a parsed certificate.
// SelfSigned is defined as subject hash equalling issuer hash.
func FromX509(c *x509.Certificate, der []byte) Certificate {
	subject := DnFromName(c.Subject)
	issuer := DnFromName(c.Issuer)
	keyAlg, keyBits := keyInfo(c)
	sigAlg, hashAlg := SplitSignatureAlgorithm(c.SignatureAlgorithm)
	return Certificate{
		Fingerprint:        Fingerprint(der),
		Subject:            shortName(c.Subject),
		Issuer:             shortName(c.Issuer),
		SubjectHash:        subject.Hash,
		IssuerHash:         issuer.Hash,
		Version:            c.Version,
		SelfSigned:         subject.Hash == issuer.Hash,
		CA:                 c.IsCA,
		KeyAlgorithm:       keyAlg,
		KeyBits:            keyBits,
		SignatureAlgorithm: sigAlg,
		HashAlgorithm:      hashAlg,
		NotBefore:          c.NotBefore,
		NotAfter:           c.NotAfter,
		DER:                der,
	}
}

// SplitSignatureAlgorithm splits a composite name like "SHA256-RSA" or
// "ECDSA-SHA384" into the signing algorithm and the hash algorithm.
// Ed25519 has an intrinsic hash and yields an empty hash component.
func SplitSignatureAlgorithm(sa x509.SignatureAlgorithm) (alg, hash string) {
	name := sa.String()
	parts := strings.Split(name, "-")
	if len(parts) == 1 {
		return name, ""
	}
	var algParts []string
	for _, p := range parts {
		upper := strings.ToUpper(p)
		if strings.HasPrefix(upper, "SHA") || strings.HasPrefix(upper, "MD") {
			hash = upper
			continue
		}
		algParts = append(algParts, p)
	}
	alg = strings.Join(algParts, "-")
	if alg == "" {
		alg = name
	}
	return alg, hash
}

func keyInfo(c *x509.Certificate) (string, int) {
	switch pub := c.PublicKey.(type) {
	case *rsa.PublicKey:
		return "RSA", pub.N.BitLen()
	case *ecdsa.PublicKey:
		return "ECDSA", pub.Curve.Params().BitSize
	case ed25519.PublicKey:
		return "Ed25519", 256
	default:
		return c.PublicKeyAlgorithm.String(), 0
	}
}

// shortName prefers the CN, falling back to the full DN string.
func shortName(n pkix.Name) string {
	if n.CommonName != "" {
		return n.CommonName
	}
	return n.String()
}
