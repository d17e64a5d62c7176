package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/certscope/certscope/internal/verify"
)

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Manage the trust store",
	Long: `Mark cataloged CA certificates as trust anchors for chain
verification, or export the current anchors as a PEM bundle. Only
certificates already observed by a scan (or present in a stored chain)
can be trusted; certificates are addressed by their hex SHA-256
fingerprint as shown by scans and chain listings.`,
}

var trustAddCmd = &cobra.Command{
	Use:   "add <fingerprint>",
	Short: "Mark a cataloged CA certificate as trusted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTrust(cmd, args[0], true)
	},
}

var trustRemoveCmd = &cobra.Command{
	Use:   "remove <fingerprint>",
	Short: "Withdraw trust from a certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTrust(cmd, args[0], false)
	},
}

var trustExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the trusted CAs as a PEM bundle to stdout",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cat, err := openCatalog(cfg)
		if err != nil {
			return err
		}
		defer cat.Close() //nolint:errcheck // read-only consumer

		bundle, err := verify.TrustBundlePEM(cat)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(bundle)
		return err
	},
}

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.AddCommand(trustAddCmd)
	trustCmd.AddCommand(trustRemoveCmd)
	trustCmd.AddCommand(trustExportCmd)
	for _, c := range []*cobra.Command{trustAddCmd, trustRemoveCmd, trustExportCmd} {
		c.Flags().String("config", "", "Path to config file")
	}
}

func setTrust(cmd *cobra.Command, fingerprint string, trusted bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close() //nolint:errcheck // single-write command

	if err := cat.SetTrusted(fingerprint, trusted); err != nil {
		return err
	}
	if trusted {
		fmt.Printf("trusted %s\n", fingerprint)
	} else {
		fmt.Printf("untrusted %s\n", fingerprint)
	}
	return nil
}
