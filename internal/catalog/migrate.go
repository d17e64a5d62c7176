package catalog

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS targets (
    id                          INTEGER PRIMARY KEY AUTOINCREMENT,
    ip                          BLOB NOT NULL,
    port                        INTEGER NOT NULL,
    hostname                    TEXT NOT NULL DEFAULT '',
    latest_certificate_chain_id INTEGER REFERENCES certificate_chains(id),
    last_scan                   DATETIME,
    UNIQUE(ip, port, hostname)
);

CREATE TABLE IF NOT EXISTS certificates (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    fingerprint         TEXT NOT NULL UNIQUE,
    subject             TEXT NOT NULL DEFAULT '',
    issuer              TEXT NOT NULL DEFAULT '',
    subject_hash        TEXT NOT NULL,
    issuer_hash         TEXT NOT NULL,
    version             INTEGER NOT NULL DEFAULT 0,
    self_signed         BOOLEAN NOT NULL DEFAULT 0,
    ca                  BOOLEAN NOT NULL DEFAULT 0,
    key_algorithm       TEXT NOT NULL DEFAULT '',
    key_bits            INTEGER NOT NULL DEFAULT 0,
    signature_algorithm TEXT NOT NULL DEFAULT '',
    hash_algorithm      TEXT NOT NULL DEFAULT '',
    not_before          DATETIME,
    not_after           DATETIME,
    der                 BLOB NOT NULL,
    trusted             BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dns (
    hash  TEXT NOT NULL,
    type  TEXT NOT NULL,
    key   TEXT NOT NULL,
    value TEXT NOT NULL,
    ord   INTEGER NOT NULL,
    UNIQUE(hash, type, ord)
);

CREATE TABLE IF NOT EXISTS certificate_chains (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    target_id      INTEGER NOT NULL REFERENCES targets(id),
    length         INTEGER NOT NULL,
    verified       BOOLEAN NOT NULL DEFAULT 0,
    valid          BOOLEAN NOT NULL DEFAULT 0,
    invalid_reason TEXT NOT NULL DEFAULT '',
    created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS certificate_chain_links (
    certificate_chain_id INTEGER NOT NULL REFERENCES certificate_chains(id),
    ord                  INTEGER NOT NULL,
    certificate_id       INTEGER NOT NULL REFERENCES certificates(id),
    UNIQUE(certificate_chain_id, ord, certificate_id)
);

CREATE TABLE IF NOT EXISTS subject_alt_names (
    certificate_id INTEGER NOT NULL REFERENCES certificates(id),
    hash           TEXT NOT NULL,
    type           TEXT NOT NULL,
    value          TEXT NOT NULL,
    UNIQUE(certificate_id, hash)
);

CREATE TABLE IF NOT EXISTS jobs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    name            TEXT NOT NULL UNIQUE,
    cidrs           TEXT NOT NULL DEFAULT '',
    ports           TEXT NOT NULL DEFAULT '',
    exclude_targets TEXT NOT NULL DEFAULT '',
    author          TEXT NOT NULL DEFAULT '',
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS schedules (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id          INTEGER NOT NULL REFERENCES jobs(id),
    name            TEXT NOT NULL UNIQUE,
    frequency       TEXT NOT NULL,
    full_scan       BOOLEAN NOT NULL DEFAULT 1,
    rescan          BOOLEAN NOT NULL DEFAULT 0,
    since_last_scan TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS job_runs (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id           INTEGER NOT NULL REFERENCES jobs(id),
    total_targets    INTEGER NOT NULL DEFAULT 0,
    finished_targets INTEGER NOT NULL DEFAULT 0,
    started_at       DATETIME NOT NULL,
    ended_at         DATETIME
);

CREATE INDEX IF NOT EXISTS idx_chains_target ON certificate_chains(target_id);
CREATE INDEX IF NOT EXISTS idx_links_chain ON certificate_chain_links(certificate_chain_id);
CREATE INDEX IF NOT EXISTS idx_certs_trusted ON certificates(ca, trusted);
CREATE INDEX IF NOT EXISTS idx_runs_job ON job_runs(job_id);
`

func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
