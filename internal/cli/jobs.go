package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs and schedules known to the catalog",
	RunE:  runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.Flags().String("config", "", "Path to config file")
}

func runJobs(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close() //nolint:errcheck // read-only consumer

	jobs, err := cat.Jobs()
	if err != nil {
		return err
	}
	schedules, err := cat.Schedules()
	if err != nil {
		return err
	}
	byJob := make(map[int64]int)
	for _, s := range schedules {
		byJob[s.JobID]++
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCIDRS\tPORTS\tEXCLUDES\tSCHEDULES")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", j.Name, j.CIDRs, j.Ports, j.ExcludeTargets, byJob[j.ID])
	}
	return w.Flush()
}
