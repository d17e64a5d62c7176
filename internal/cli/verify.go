package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/certscope/certscope/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validate stored chains against the trust store",
	Long: `Re-examine every chain the catalog has not verified yet, or last found
invalid, against the certificates marked trusted. Requires at least one
trusted CA (see "certscope trust add").`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().String("config", "", "Path to config file")
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close() //nolint:errcheck // read-mostly shutdown

	examined, err := verify.New(cat).Run(cmd.Context())
	if err != nil {
		return err
	}
	slog.Info("verification complete", "chains", examined)
	return nil
}
