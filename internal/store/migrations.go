package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	kind            TEXT NOT NULL CHECK(kind IN ('repository', 'issue', 'pull_request')),
	ref             TEXT NOT NULL,
	remote_id       INTEGER NOT NULL DEFAULT 0,
	snapshot        TEXT NOT NULL DEFAULT '{}',
	first_seen_at   DATETIME NOT NULL,
	last_changed_at DATETIME NOT NULL,
	last_checked_at DATETIME NOT NULL,
	PRIMARY KEY (kind, ref)
);

CREATE TABLE IF NOT EXISTS notifications (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_kind TEXT NOT NULL,
	entity_ref  TEXT NOT NULL,
	change_kind TEXT NOT NULL CHECK(change_kind IN ('created', 'updated')),
	payload     TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'sent', 'failed')),
	run_id      TEXT NOT NULL DEFAULT '',
	attempts    INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	sent_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_notifications_status_created
	ON notifications(status, created_at, id);
CREATE INDEX IF NOT EXISTS idx_notifications_entity
	ON notifications(entity_kind, entity_ref);
CREATE INDEX IF NOT EXISTS idx_entities_checked ON entities(last_checked_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS watchlist (
	repo     TEXT PRIMARY KEY,
	origin   TEXT NOT NULL DEFAULT 'manual' CHECK(origin IN ('config', 'discovered', 'manual')),
	active   INTEGER NOT NULL DEFAULT 1 CHECK(active IN (0, 1)),
	added_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pass_runs (
	run_id        TEXT PRIMARY KEY,
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME NOT NULL,
	checked       INTEGER NOT NULL DEFAULT 0,
	created       INTEGER NOT NULL DEFAULT 0,
	updated       INTEGER NOT NULL DEFAULT 0,
	unchanged     INTEGER NOT NULL DEFAULT 0,
	fetch_failed  INTEGER NOT NULL DEFAULT 0,
	commit_failed INTEGER NOT NULL DEFAULT 0,
	sent          INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	aborted       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_watchlist_active ON watchlist(active);
CREATE INDEX IF NOT EXISTS idx_pass_runs_started ON pass_runs(started_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
