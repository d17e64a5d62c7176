package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/certscope/certscope/internal/catalog"
	"github.com/certscope/certscope/internal/config"
	"github.com/certscope/certscope/internal/enumerate"
	"github.com/certscope/certscope/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan [job...]",
	Short: "Run scan jobs and record the presented certificate chains",
	Long: `Enumerate each job's address space, probe every (ip, port, sni) target
for a TLS handshake, and store the presented chains in the catalog.
With --rescan, revisit targets already known to the catalog instead of
enumerating; --since-last-scan restricts the rescan to targets not seen
within the given duration.`,
	Example: `  # Run one job from the config file
  certscope scan edge --config certscope.yaml

  # Run every configured job
  certscope scan --all --config certscope.yaml

  # Revisit known targets not scanned in the last week
  certscope scan edge --rescan --since-last-scan 168h`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().String("config", "", "Path to config file")
	scanCmd.Flags().Bool("all", false, "Run every job in the config")
	scanCmd.Flags().Int("parallel", 0, "Concurrent probe limit (overrides config)")
	scanCmd.Flags().Duration("timeout", 0, "Per-probe timeout (overrides config)")
	scanCmd.Flags().Bool("rescan", false, "Rescan known targets instead of enumerating")
	scanCmd.Flags().Duration("since-last-scan", 0, "With --rescan, only targets not scanned within this duration")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if p, _ := cmd.Flags().GetInt("parallel"); p != 0 { //nolint:errcheck // flag registered above
		cfg.Parallel = p
	}
	if d, _ := cmd.Flags().GetDuration("timeout"); d != 0 { //nolint:errcheck // flag registered above
		cfg.Timeout = d
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	all, _ := cmd.Flags().GetBool("all")                          //nolint:errcheck // flag registered above
	rescan, _ := cmd.Flags().GetBool("rescan")                    //nolint:errcheck // flag registered above
	since, _ := cmd.Flags().GetDuration("since-last-scan")        //nolint:errcheck // flag registered above
	if !all && len(args) == 0 {
		return fmt.Errorf("name at least one job or pass --all")
	}

	var jobs []config.JobConfig
	if all {
		jobs = cfg.Jobs
	} else {
		for _, name := range args {
			j := cfg.Job(name)
			if j == nil {
				return fmt.Errorf("job %q not found in config", name)
			}
			jobs = append(jobs, *j)
		}
	}

	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close() //nolint:errcheck // read-mostly shutdown

	for _, job := range jobs {
		if _, err := scanJob(cmd.Context(), cat, cfg, job, rescan, since); err != nil {
			return err
		}
	}
	return nil
}

// scanJob runs one scan pass for a job and logs its outcome. An empty
// target set is reported, not treated as a failure.
func scanJob(ctx context.Context, cat *catalog.Catalog, cfg *config.Config, job config.JobConfig, rescan bool, since time.Duration) (scanner.Stats, error) {
	jobID, err := cat.UpsertJob(job.ToStore())
	if err != nil {
		return scanner.Stats{}, fmt.Errorf("registering job %q: %w", job.Name, err)
	}

	var src scanner.Source
	if rescan {
		before := time.Now()
		if since > 0 {
			before = before.Add(-since)
		}
		targets, err := cat.RescanTargets(before)
		if err != nil {
			return scanner.Stats{}, fmt.Errorf("loading rescan targets: %w", err)
		}
		src = enumerate.Slice(targets)
	} else {
		src = enumerate.New(job.ToStore(), enumerate.MergeSniMaps(enumerate.StaticSniMap(job.SNI)))
	}

	s, err := scanner.New(cat, scanner.Options{Parallel: cfg.Parallel, Timeout: cfg.Timeout})
	if err != nil {
		return scanner.Stats{}, err
	}

	slog.Info("scan starting", "job", job.Name, "targets", src.Total(), "rescan", rescan)
	stats, err := s.Run(ctx, jobID, src)
	if errors.Is(err, scanner.ErrNoTargets) {
		slog.Info("scan yielded no targets", "job", job.Name)
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("scanning job %q: %w", job.Name, err)
	}
	slog.Info("scan complete", "job", job.Name, "targets", stats.Total,
		"succeeded", stats.Succeeded, "failed", stats.Failed,
		"duration", stats.Duration.Round(time.Millisecond))
	return stats, nil
}
