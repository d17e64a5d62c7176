package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/certscope/certscope/internal/store"
)

// UpsertJob creates or updates a job by name and returns its id.
func (c *Catalog) UpsertJob(job store.Job) (int64, error) {
	now := time.Now().UTC()
	_, err := c.db.Exec(`
		INSERT INTO jobs (name, cidrs, ports, exclude_targets, author, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			cidrs = excluded.cidrs,
			ports = excluded.ports,
			exclude_targets = excluded.exclude_targets,
			author = excluded.author,
			updated_at = excluded.updated_at`,
		job.Name, job.CIDRs, job.Ports, job.ExcludeTargets, job.Author, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("upserting job: %w", err)
	}
	var id int64
	if err := c.db.QueryRow("SELECT id FROM jobs WHERE name = ?", job.Name).Scan(&id); err != nil {
		return 0, fmt.Errorf("reading job id: %w", err)
	}
	return id, nil
}

// JobByName returns a job, or nil when no job has that name.
func (c *Catalog) JobByName(name string) (*store.Job, error) {
	var j store.Job
	err := c.db.QueryRow(
		"SELECT id, name, cidrs, ports, exclude_targets, author, created_at, updated_at FROM jobs WHERE name = ?",
		name).Scan(&j.ID, &j.Name, &j.CIDRs, &j.Ports, &j.ExcludeTargets, &j.Author, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying job: %w", err)
	}
	return &j, nil
}

// Jobs lists all jobs.
func (c *Catalog) Jobs() ([]store.Job, error) {
	rows, err := c.db.Query(
		"SELECT id, name, cidrs, ports, exclude_targets, author, created_at, updated_at FROM jobs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query
	var jobs []store.Job
	for rows.Next() {
		var j store.Job
		if err := rows.Scan(&j.ID, &j.Name, &j.CIDRs, &j.Ports, &j.ExcludeTargets, &j.Author, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpsertSchedule creates or updates a schedule by name.
func (c *Catalog) UpsertSchedule(s store.Schedule) (int64, error) {
	_, err := c.db.Exec(`
		INSERT INTO schedules (job_id, name, frequency, full_scan, rescan, since_last_scan)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			job_id = excluded.job_id,
			frequency = excluded.frequency,
			full_scan = excluded.full_scan,
			rescan = excluded.rescan,
			since_last_scan = excluded.since_last_scan`,
		s.JobID, s.Name, s.Frequency, s.FullScan, s.Rescan, s.SinceLastScan,
	)
	if err != nil {
		return 0, fmt.Errorf("upserting schedule: %w", err)
	}
	var id int64
	if err := c.db.QueryRow("SELECT id FROM schedules WHERE name = ?", s.Name).Scan(&id); err != nil {
		return 0, fmt.Errorf("reading schedule id: %w", err)
	}
	return id, nil
}

// Schedules lists all schedules.
func (c *Catalog) Schedules() ([]store.Schedule, error) {
	rows, err := c.db.Query(
		"SELECT id, job_id, name, frequency, full_scan, rescan, since_last_scan FROM schedules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query
	var out []store.Schedule
	for rows.Next() {
		var s store.Schedule
		if err := rows.Scan(&s.ID, &s.JobID, &s.Name, &s.Frequency, &s.FullScan, &s.Rescan, &s.SinceLastScan); err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateJobRun opens a new append-only run record.
func (c *Catalog) CreateJobRun(jobID, totalTargets int64, started time.Time) (int64, error) {
	res, err := c.db.Exec(
		"INSERT INTO job_runs (job_id, total_targets, started_at) VALUES (?, ?, ?)",
		jobID, totalTargets, started,
	)
	if err != nil {
		return 0, fmt.Errorf("creating job run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting job run id: %w", err)
	}
	return id, nil
}

// UpdateJobRunProgress writes the current finished-target counter.
func (c *Catalog) UpdateJobRunProgress(runID, finished int64) error {
	_, err := c.db.Exec("UPDATE job_runs SET finished_targets = ? WHERE id = ?", finished, runID)
	if err != nil {
		return fmt.Errorf("updating job run progress: %w", err)
	}
	return nil
}

// FinishJobRun writes the final counter and the end timestamp.
func (c *Catalog) FinishJobRun(runID, finished int64, ended time.Time) error {
	_, err := c.db.Exec(
		"UPDATE job_runs SET finished_targets = ?, ended_at = ? WHERE id = ?",
		finished, ended, runID,
	)
	if err != nil {
		return fmt.Errorf("finishing job run: %w", err)
	}
	return nil
}

// JobRun reads one run record.
func (c *Catalog) JobRun(runID int64) (*store.JobRun, error) {
	var (
		r     store.JobRun
		ended sql.NullTime
	)
	err := c.db.QueryRow(
		"SELECT id, job_id, total_targets, finished_targets, started_at, ended_at FROM job_runs WHERE id = ?",
		runID).Scan(&r.ID, &r.JobID, &r.TotalTargets, &r.FinishedTargets, &r.StartedAt, &ended)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying job run: %w", err)
	}
	r.EndedAt = ended.Time
	return &r, nil
}
