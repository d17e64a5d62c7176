package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/certscope/certscope/internal/catalog"
	"github.com/certscope/certscope/internal/config"
)

// loadConfig resolves defaults, the optional config file and root-level
// flag overrides, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg := config.Defaults()
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" { //nolint:errcheck // flag registered on root
		cfg.DatabasePath = db
	}
	return cfg, nil
}

func openCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	cat, err := catalog.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", cfg.DatabasePath, err)
	}
	return cat, nil
}
