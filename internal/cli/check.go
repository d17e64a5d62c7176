package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/certscope/certscope/internal/check"
)

var checkCmd = &cobra.Command{
	Use:   "check <host>",
	Short: "Monitoring-style health check of a scanned endpoint",
	Long: `Query the catalog's latest observations for a host (hostname or IP
literal) and report a three-state verdict with perfdata.

Thresholds accept either a percentage of the validity window elapsed
("90%") or an interval before expiry ("240h").

Exit codes: 0 OK, 1 WARNING, 2 CRITICAL, 3 UNKNOWN.`,
	Example: `  # Check every scanned port of a host
  certscope check web.example

  # One port, explicit thresholds
  certscope check 192.0.2.5 --port 8443 --warn 720h --crit 168h

  # Percentage thresholds
  certscope check web.example --warn 80% --crit 95%`,
	Args: cobra.ExactArgs(1),
	RunE: runHealthCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().String("config", "", "Path to config file")
	checkCmd.Flags().Int("port", 0, "Restrict the check to one port")
	checkCmd.Flags().String("warn", "", "Warning threshold (default from config warnBefore)")
	checkCmd.Flags().String("crit", "", "Critical threshold (default from config critBefore)")
}

func runHealthCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	port, _ := cmd.Flags().GetInt("port") //nolint:errcheck // flag registered above

	warn, err := thresholdFlag(cmd, "warn", cfg.WarnBefore)
	if err != nil {
		return err
	}
	crit, err := thresholdFlag(cmd, "crit", cfg.CritBefore)
	if err != nil {
		return err
	}

	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close() //nolint:errcheck // read-only consumer

	statuses, err := cat.TargetStatuses(args[0], port)
	if err != nil {
		return err
	}

	result := check.Evaluate(statuses, warn, crit, time.Now())
	fmt.Println(result.Render())
	if result.Status != check.StatusOK {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		cat.Close()                   //nolint:errcheck // explicit cleanup because os.Exit bypasses defers
		os.Exit(int(result.Status))   //nolint:gocritic // exitAfterDefer — plugin exit code is the contract
	}
	return nil
}

func thresholdFlag(cmd *cobra.Command, name string, fallback time.Duration) (check.Threshold, error) {
	raw, _ := cmd.Flags().GetString(name) //nolint:errcheck // flag registered above
	if raw == "" {
		return check.Threshold{Interval: fallback}, nil
	}
	t, err := check.ParseThreshold(raw)
	if err != nil {
		return check.Threshold{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}
