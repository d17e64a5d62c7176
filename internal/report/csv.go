// Package report renders catalog inventories for external consumption.
package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/certscope/certscope/internal/store"
)

var csvHeader = []string{
	"fingerprint", "subject", "issuer", "selfSigned", "ca", "trusted",
	"keyAlgorithm", "keyBits", "signatureAlgorithm", "hashAlgorithm",
	"notBefore", "notAfter",
}

// WriteCSV writes the certificate inventory as CSV rows to w.
func WriteCSV(w io.Writer, certs []store.Certificate) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for i := range certs {
		c := &certs[i]
		row := []string{
			c.Fingerprint,
			c.Subject,
			c.Issuer,
			strconv.FormatBool(c.SelfSigned),
			strconv.FormatBool(c.CA),
			strconv.FormatBool(c.Trusted),
			c.KeyAlgorithm,
			strconv.Itoa(c.KeyBits),
			c.SignatureAlgorithm,
			c.HashAlgorithm,
			c.NotBefore.UTC().Format(time.RFC3339),
			c.NotAfter.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
