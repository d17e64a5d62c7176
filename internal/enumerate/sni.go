package enumerate

import (
	"log/slog"
	"slices"
)

// SniMapProvider supplies SNI hostnames per address. The enumerator
// composes results from zero or more providers without knowing their
// identity.
type SniMapProvider interface {
	// Map returns ip → hostnames.
	Map() (map[string][]string, error)
}

// StaticSniMap is a fixed in-memory provider, the config-file case.
type StaticSniMap map[string][]string

func (m StaticSniMap) Map() (map[string][]string, error) {
	return m, nil
}

// MergeSniMaps unions the hostname sets of all providers. A failing
// provider is skipped with a warning; SNI enrichment is best-effort.
func MergeSniMaps(providers ...SniMapProvider) map[string][]string {
	merged := make(map[string][]string)
	for _, p := range providers {
		m, err := p.Map()
		if err != nil {
			slog.Warn("skipping SNI provider", "err", err)
			continue
		}
		for ip, names := range m {
			for _, name := range names {
				if !slices.Contains(merged[ip], name) {
					merged[ip] = append(merged[ip], name)
				}
			}
		}
	}
	return merged
}
