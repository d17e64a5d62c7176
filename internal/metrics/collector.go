// Package metrics provides Prometheus instrumentation for certscope.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/certscope/certscope/internal/scanner"
)

// Collector publishes per-job scan outcomes and verification pass
// results as gauges.
type Collector struct {
	scanTargets   *prometheus.GaugeVec
	scanFinished  *prometheus.GaugeVec
	scanSucceeded *prometheus.GaugeVec
	scanFailed    *prometheus.GaugeVec
	scanDuration  *prometheus.GaugeVec
	chainsChecked prometheus.Gauge
	verifyAt      prometheus.Gauge
	mu            sync.Mutex
}

// NewCollector creates and registers metrics on the given registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scanTargets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "certscope",
			Name:      "scan_targets_total",
			Help:      "Number of targets in the job's last scan pass.",
		}, []string{"job"}),

		scanFinished: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "certscope",
			Name:      "scan_finished_targets",
			Help:      "Number of targets completed in the job's last scan pass.",
		}, []string{"job"}),

		scanSucceeded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "certscope",
			Name:      "scan_succeeded_targets",
			Help:      "Targets that presented a certificate chain in the last pass.",
		}, []string{"job"}),

		scanFailed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "certscope",
			Name:      "scan_failed_targets",
			Help:      "Targets with no chain (refused, timed out, handshake failed).",
		}, []string{"job"}),

		scanDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "certscope",
			Name:      "scan_duration_seconds",
			Help:      "Duration of the job's last scan pass in seconds.",
		}, []string{"job"}),

		chainsChecked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "certscope",
			Name:      "verify_chains_examined",
			Help:      "Chains examined by the last verification pass.",
		}),

		verifyAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "certscope",
			Name:      "verify_last_run_timestamp",
			Help:      "Unix timestamp of the last verification pass.",
		}),
	}

	reg.MustRegister(c.scanTargets)
	reg.MustRegister(c.scanFinished)
	reg.MustRegister(c.scanSucceeded)
	reg.MustRegister(c.scanFailed)
	reg.MustRegister(c.scanDuration)
	reg.MustRegister(c.chainsChecked)
	reg.MustRegister(c.verifyAt)

	return c
}

// ScanCompleted records the outcome of one scan pass for a job.
func (c *Collector) ScanCompleted(job string, stats scanner.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	labels := prometheus.Labels{"job": job}
	c.scanTargets.With(labels).Set(float64(stats.Total))
	c.scanFinished.With(labels).Set(float64(stats.Succeeded + stats.Failed))
	c.scanSucceeded.With(labels).Set(float64(stats.Succeeded))
	c.scanFailed.With(labels).Set(float64(stats.Failed))
	c.scanDuration.With(labels).Set(stats.Duration.Seconds())
}

// VerifyCompleted records the outcome of one verification pass.
func (c *Collector) VerifyCompleted(examined int, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.chainsChecked.Set(float64(examined))
	c.verifyAt.Set(float64(at.Unix()))
}
