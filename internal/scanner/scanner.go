// Package scanner drives a scan run: it drains a target source through a
// bounded pool of probes and records every outcome in the catalog.
package scanner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/certscope/certscope/internal/catalog"
	"github.com/certscope/certscope/internal/probe"
	"github.com/certscope/certscope/internal/store"
)

// Source yields the targets of one run. Total must be known up front for
// progress accounting; All must be restartable and lazy so address spaces
// far larger than memory stay enumerable.
type Source interface {
	Total() int64
	All() iter.Seq[store.Target]
}

// ErrNoTargets is returned when a source yields nothing, so callers can
// distinguish an empty job from a failed one.
var ErrNoTargets = errors.New("no targets to scan")

// DefaultParallel bounds in-flight probes when the operator does not set
// a limit.
const DefaultParallel = 256

// LookupAddrFunc resolves an IP to hostnames, injectable for tests.
type LookupAddrFunc func(ctx context.Context, addr string) ([]string, error)

// Options configures a Scanner. Zero values fall back to defaults except
// Parallel, which must be positive.
type Options struct {
	Parallel   int
	Timeout    time.Duration
	Probe      probe.Func
	LookupAddr LookupAddrFunc
}

// Stats summarizes one completed run.
type Stats struct {
	RunID     int64
	Total     int64
	Succeeded int64
	Failed    int64
	Duration  time.Duration
}

// Scanner probes targets and persists the chains they present.
type Scanner struct {
	cat      *catalog.Catalog
	probeFn  probe.Func
	lookupFn LookupAddrFunc
	parallel int
	timeout  time.Duration
	nowFn    func() time.Time
}

// New validates the options and builds a scanner.
func New(cat *catalog.Catalog, opts Options) (*Scanner, error) {
	if opts.Parallel == 0 {
		opts.Parallel = DefaultParallel
	}
	if opts.Parallel < 0 {
		return nil, fmt.Errorf("parallel must be positive, got %d", opts.Parallel)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = probe.DefaultTimeout
	}
	if opts.Probe == nil {
		opts.Probe = probe.Probe
	}
	if opts.LookupAddr == nil {
		opts.LookupAddr = (&net.Resolver{}).LookupAddr
	}
	return &Scanner{
		cat:      cat,
		probeFn:  opts.Probe,
		lookupFn: opts.LookupAddr,
		parallel: opts.Parallel,
		timeout:  opts.Timeout,
		nowFn:    time.Now,
	}, nil
}

// Run drains the source. At most parallel probes are in flight at once;
// each completion admits the next target, so the pool stays full until
// the source is exhausted. A run record is created up front and finished
// unconditionally, even when the context is canceled mid-run.
func (s *Scanner) Run(ctx context.Context, jobID int64, src Source) (Stats, error) {
	total := src.Total()
	if total == 0 {
		return Stats{}, ErrNoTargets
	}

	started := s.nowFn()
	runID, err := s.cat.CreateJobRun(jobID, total, started)
	if err != nil {
		return Stats{}, fmt.Errorf("create job run: %w", err)
	}

	// Persist progress roughly every percent; per-target writes would
	// dominate small probes on large runs.
	step := total / 100
	if step < 1 {
		step = 1
	}

	var finished, succeeded atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for target := range src.All() {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			captured, err := s.scanOne(gctx, target)
			if err != nil {
				slog.Error("recording scan result", "target", target, "err", err)
			}
			if captured && err == nil {
				succeeded.Add(1)
			}
			if n := finished.Add(1); n%step == 0 {
				if err := s.cat.UpdateJobRunProgress(runID, n); err != nil {
					slog.Warn("updating run progress", "run", runID, "err", err)
				}
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors, failures are recorded per target

	done := finished.Load()
	if err := s.cat.FinishJobRun(runID, done, s.nowFn()); err != nil {
		return Stats{}, fmt.Errorf("finish job run: %w", err)
	}
	stats := Stats{
		RunID:     runID,
		Total:     total,
		Succeeded: succeeded.Load(),
		Failed:    done - succeeded.Load(),
		Duration:  s.nowFn().Sub(started),
	}
	return stats, ctx.Err()
}

// scanOne probes a single target and records the outcome in one
// transaction. A failed probe is still a result: the target row is
// updated and its latest-chain pointer cleared so the catalog reflects
// what the network currently presents. The boolean reports whether the
// probe captured a chain, independent of whether recording it worked.
func (s *Scanner) scanOne(ctx context.Context, target store.Target) (bool, error) {
	// One timeout budget per attempt, covering the probe and the PTR
	// lookup so a slow resolver cannot hold a worker slot.
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res := s.probeFn(pctx, target)

	now := s.nowFn()
	if !res.ProbeOK {
		slog.Debug("probe failed", "target", target, "err", res.ProbeErr)
		return false, s.cat.WithTx(func(tx *sql.Tx) error {
			targetID, err := s.cat.UpsertTarget(tx, target, now)
			if err != nil {
				return err
			}
			return s.cat.ClearLatestChain(tx, targetID)
		})
	}

	if target.Hostname == "" {
		target.Hostname = s.reverseName(pctx, target.IPString())
	}

	return true, s.cat.WithTx(func(tx *sql.Tx) error {
		targetID, err := s.cat.UpsertTarget(tx, target, now)
		if err != nil {
			return err
		}
		chainID, err := s.cat.InsertChain(tx, targetID, len(res.Chain), now)
		if err != nil {
			return err
		}
		for ord, cert := range res.Chain {
			certID, err := s.cat.FindOrInsertCertificate(tx, cert.Raw, cert)
			if err != nil {
				return err
			}
			if err := s.cat.InsertChainLink(tx, chainID, ord, certID); err != nil {
				return err
			}
		}
		return s.cat.SetLatestChain(tx, targetID, chainID)
	})
}

// reverseName resolves an IP to a hostname for targets probed without
// SNI. Lookup failure is fine, plenty of addresses have no PTR record.
func (s *Scanner) reverseName(ctx context.Context, ip string) string {
	names, err := s.lookupFn(ctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}
