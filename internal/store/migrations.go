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

CREATE TABLE IF NOT EXISTS accounts (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL CHECK(provider IN ('gmail', 'imap')),
	imap_host  TEXT NOT NULL DEFAULT '',
	imap_port  TEXT NOT NULL DEFAULT '993',
	imap_tls   INTEGER NOT NULL DEFAULT 1 CHECK(imap_tls IN (0, 1)),
	username   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS folders (
	id         TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	path       TEXT NOT NULL,
	role       TEXT NOT NULL DEFAULT '',
	UNIQUE(account_id, path)
);

CREATE TABLE IF NOT EXISTS labels (
	id         TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	role       TEXT NOT NULL DEFAULT '',
	UNIQUE(account_id, name)
);

CREATE TABLE IF NOT EXISTS messages (
	id                TEXT PRIMARY KEY,
	account_id        TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	header_message_id TEXT NOT NULL,
	subject           TEXT NOT NULL DEFAULT '',
	from_addrs        TEXT NOT NULL DEFAULT '[]',
	to_addrs          TEXT NOT NULL DEFAULT '[]',
	cc_addrs          TEXT NOT NULL DEFAULT '[]',
	bcc_addrs         TEXT NOT NULL DEFAULT '[]',
	reply_to_addrs    TEXT NOT NULL DEFAULT '[]',
	date              DATETIME NOT NULL,
	body              TEXT NOT NULL DEFAULT '',
	html_body         TEXT NOT NULL DEFAULT '',
	in_reply_to       TEXT NOT NULL DEFAULT '',
	refs              TEXT NOT NULL DEFAULT '[]',
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS message_folders (
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	folder_id  TEXT NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
	PRIMARY KEY (message_id, folder_id)
);

CREATE TABLE IF NOT EXISTS message_labels (
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	label_id   TEXT NOT NULL REFERENCES labels(id) ON DELETE CASCADE,
	PRIMARY KEY (message_id, label_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_account_id ON messages(account_id);
CREATE INDEX IF NOT EXISTS idx_messages_header_message_id ON messages(header_message_id);
CREATE INDEX IF NOT EXISTS idx_folders_role ON folders(account_id, role);
CREATE INDEX IF NOT EXISTS idx_labels_role ON labels(account_id, role);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS syncback_requests (
	id         TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	props      TEXT NOT NULL DEFAULT '{}',
	status     TEXT NOT NULL DEFAULT 'new' CHECK(status IN ('new', 'succeeded', 'failed')),
	error      TEXT NOT NULL DEFAULT '',
	attempts   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_syncback_requests_status
	ON syncback_requests(status, created_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
