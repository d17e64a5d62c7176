package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/certscope/certscope/internal/report"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the certificate inventory as CSV to stdout",
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

		certs, err := cat.Certificates()
		if err != nil {
			return err
		}
		return report.WriteCSV(os.Stdout, certs)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().String("config", "", "Path to config file")
}
