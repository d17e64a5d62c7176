// Package check turns stored target statuses into a monitoring-style
// three-state verdict with performance data. It is a read-only consumer
// of the catalog.
package check

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/certscope/certscope/internal/catalog"
)

// Status follows monitoring plugin exit-code conventions.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusCritical
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Threshold is either a percentage of the validity window elapsed
// ("90%") or an absolute interval before expiry ("240h"). Exactly one
// field is set.
type Threshold struct {
	Percent  float64
	Interval time.Duration
}

// ParseThreshold parses "NN%" or a Go duration literal.
func ParseThreshold(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		v, err := strconv.ParseFloat(pct, 64)
		if err != nil || v <= 0 || v > 100 {
			return Threshold{}, fmt.Errorf("invalid percentage threshold %q", s)
		}
		return Threshold{Percent: v}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return Threshold{}, fmt.Errorf("invalid interval threshold %q", s)
	}
	return Threshold{Interval: d}, nil
}

// exceeded reports whether the leaf's validity window trips this
// threshold at the given instant.
func (t Threshold) exceeded(notBefore, notAfter, now time.Time) bool {
	if t.Percent > 0 {
		window := notAfter.Sub(notBefore)
		if window <= 0 {
			return true
		}
		elapsed := now.Sub(notBefore)
		return float64(elapsed)/float64(window)*100 >= t.Percent
	}
	return notAfter.Sub(now) <= t.Interval
}

// Result is one evaluated verdict: a one-line human summary and
// pipe-separated perfdata for machine consumption.
type Result struct {
	Status   Status
	Summary  string
	Perfdata string
}

// Render formats the result the way monitoring agents expect it.
func (r Result) Render() string {
	if r.Perfdata == "" {
		return fmt.Sprintf("%s - %s", r.Status, r.Summary)
	}
	return fmt.Sprintf("%s - %s | %s", r.Status, r.Summary, r.Perfdata)
}

// Evaluate reduces the statuses of all matching targets to the worst
// observed state. No matching targets means UNKNOWN: absence of data is
// not health.
func Evaluate(statuses []catalog.TargetStatus, warn, crit Threshold, now time.Time) Result {
	if len(statuses) == 0 {
		return Result{Status: StatusUnknown, Summary: "no scanned targets match"}
	}

	worst := StatusOK
	var problems []string
	var perf []string
	for _, st := range statuses {
		status, detail := evaluateOne(st, warn, crit, now)
		if status > worst && status != StatusUnknown {
			worst = status
		}
		if status != StatusOK {
			problems = append(problems, fmt.Sprintf("%s: %s", st.Target, detail))
		}
		if st.HasChain && !st.NotAfter.IsZero() {
			days := st.NotAfter.Sub(now).Hours() / 24
			perf = append(perf, fmt.Sprintf("'%s'=%.1fd", st.Target, days))
		}
	}
	sort.Strings(perf)

	summary := fmt.Sprintf("%d target(s) scanned", len(statuses))
	if len(problems) > 0 {
		summary = strings.Join(problems, "; ")
	}
	return Result{Status: worst, Summary: summary, Perfdata: strings.Join(perf, " ")}
}

func evaluateOne(st catalog.TargetStatus, warn, crit Threshold, now time.Time) (Status, string) {
	if !st.HasChain {
		return StatusCritical, "no certificate chain presented at last scan"
	}
	if st.Verified && !st.Valid {
		return StatusCritical, "chain invalid: " + st.InvalidReason
	}
	if st.NotAfter.IsZero() {
		return StatusUnknown, "no leaf certificate recorded"
	}
	if !now.Before(st.NotAfter) {
		return StatusCritical, fmt.Sprintf("certificate expired %s ago", now.Sub(st.NotAfter).Round(time.Hour))
	}
	if crit.exceeded(st.NotBefore, st.NotAfter, now) {
		return StatusCritical, fmt.Sprintf("certificate expires in %s", st.NotAfter.Sub(now).Round(time.Hour))
	}
	if warn.exceeded(st.NotBefore, st.NotAfter, now) {
		return StatusWarning, fmt.Sprintf("certificate expires in %s", st.NotAfter.Sub(now).Round(time.Hour))
	}
	return StatusOK, ""
}
