package store

// schema is applied on every open; every statement must be safe to re-run
// against an existing database (CREATE TABLE IF NOT EXISTS / guarded ALTER).
// Additive migrations are appended to migrations below rather than edited
// in place, mirroring the teacher's best-effort ALTER TABLE chain.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL UNIQUE,
	human_key TEXT NOT NULL UNIQUE,
	created_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	product_key TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	created_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS product_projects (
	product_id INTEGER NOT NULL REFERENCES products(id),
	project_id INTEGER NOT NULL REFERENCES projects(id),
	PRIMARY KEY (product_id, project_id)
);

CREATE TABLE IF NOT EXISTS agents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	name TEXT NOT NULL,
	program TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	task_description TEXT NOT NULL DEFAULT '',
	contact_policy TEXT NOT NULL DEFAULT 'open',
	adjective_index INTEGER NOT NULL DEFAULT -1,
	noun_index INTEGER NOT NULL DEFAULT -1,
	last_active_ts INTEGER NOT NULL DEFAULT 0,
	last_message_ts INTEGER NOT NULL DEFAULT 0,
	registered_ts INTEGER NOT NULL,
	UNIQUE (project_id, name)
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	from_agent_id INTEGER NOT NULL REFERENCES agents(id),
	subject TEXT NOT NULL DEFAULT '',
	body_md TEXT NOT NULL DEFAULT '',
	importance TEXT NOT NULL DEFAULT 'normal',
	thread_id TEXT NOT NULL,
	parent_message_id INTEGER REFERENCES messages(id),
	ack_required INTEGER NOT NULL DEFAULT 0,
	created_ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_project_created ON messages(project_id, created_ts DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);

CREATE TABLE IF NOT EXISTS message_recipients (
	message_id INTEGER NOT NULL REFERENCES messages(id),
	agent_id INTEGER NOT NULL REFERENCES agents(id),
	kind TEXT NOT NULL, -- to | cc | bcc
	PRIMARY KEY (message_id, agent_id)
);
CREATE INDEX IF NOT EXISTS idx_recipients_agent ON message_recipients(agent_id, message_id);

CREATE TABLE IF NOT EXISTS message_reads (
	message_id INTEGER NOT NULL REFERENCES messages(id),
	agent_id INTEGER NOT NULL REFERENCES agents(id),
	read_ts INTEGER NOT NULL,
	PRIMARY KEY (message_id, agent_id)
);

CREATE TABLE IF NOT EXISTS message_acks (
	message_id INTEGER NOT NULL REFERENCES messages(id),
	agent_id INTEGER NOT NULL REFERENCES agents(id),
	acked_ts INTEGER NOT NULL,
	PRIMARY KEY (message_id, agent_id)
);

CREATE TABLE IF NOT EXISTS file_reservations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	agent_id INTEGER NOT NULL REFERENCES agents(id),
	path_pattern TEXT NOT NULL,
	exclusive INTEGER NOT NULL DEFAULT 1,
	reason TEXT NOT NULL DEFAULT '',
	acquired_ts INTEGER NOT NULL,
	expires_ts INTEGER NOT NULL,
	released_ts INTEGER,
	force_released_by INTEGER REFERENCES agents(id),
	force_released_ts INTEGER,
	force_release_note TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_reservations_project_active ON file_reservations(project_id, released_ts, expires_ts);

CREATE TABLE IF NOT EXISTS build_slot_leases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	agent_id INTEGER NOT NULL REFERENCES agents(id),
	slot TEXT NOT NULL,
	acquired_ts INTEGER NOT NULL,
	expires_ts INTEGER NOT NULL,
	released_ts INTEGER
);
CREATE INDEX IF NOT EXISTS idx_slots_project_slot ON build_slot_leases(project_id, slot, released_ts);

CREATE TABLE IF NOT EXISTS contacts (
	project_id INTEGER NOT NULL REFERENCES projects(id),
	agent_a_id INTEGER NOT NULL REFERENCES agents(id),
	agent_b_id INTEGER NOT NULL REFERENCES agents(id),
	state TEXT NOT NULL DEFAULT 'requested',
	requested_by INTEGER NOT NULL REFERENCES agents(id),
	requested_reason TEXT NOT NULL DEFAULT '',
	decided_ts INTEGER,
	PRIMARY KEY (project_id, agent_a_id, agent_b_id)
);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	subject,
	body_md,
	from_agent_name,
	recipient_agent_names,
	content='',
	tokenize='unicode61 remove_diacritics 2'
);

CREATE TABLE IF NOT EXISTS shadow_search_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	query TEXT NOT NULL,
	schema_version INTEGER NOT NULL,
	record TEXT NOT NULL,
	created_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_ts INTEGER NOT NULL
);
`

// migrations is an ordered list of additive statements applied once each,
// tracked in schema_migrations. New columns/tables belonging to a later
// revision of this server are appended here, never edited into schema above,
// so that a database created by an older binary upgrades forward cleanly.
var migrations = []string{
	// v1 baseline is schema above; the migrations ledger starts recording
	// from v2 onward.
}
