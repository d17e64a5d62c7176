package addrspace

import (
	"fmt"
	"strconv"
	"strings"
)

// PortRange is one inclusive port interval.
type PortRange struct {
	First int
	Last  int
}

// Size returns the number of ports in the range.
func (r PortRange) Size() int {
	return r.Last - r.First + 1
}

// Ports iterates the range.
func (r PortRange) Ports(yield func(int) bool) {
	for p := r.First; p <= r.Last; p++ {
		if !yield(p) {
			return
		}
	}
}

// ParsePortRange parses a single "port" or "first-last" token. Callers
// iterate comma-separated lists themselves so one malformed entry can be
// skipped with a warning instead of failing the whole list.
func ParsePortRange(tok string) (PortRange, error) {
	first, last, isRange := strings.Cut(strings.TrimSpace(tok), "-")
	lo, err := parsePort(first)
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port entry %q: %w", tok, err)
	}
	if !isRange {
		return PortRange{First: lo, Last: lo}, nil
	}
	hi, err := parsePort(last)
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port entry %q: %w", tok, err)
	}
	if hi < lo {
		return PortRange{}, fmt.Errorf("invalid port entry %q: descending range", tok)
	}
	return PortRange{First: lo, Last: hi}, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("port %d out of range", p)
	}
	return p, nil
}

// SplitList splits a comma-separated configuration list, trimming spaces
// and dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
