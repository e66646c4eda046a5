package workspace

const schema = `
CREATE TABLE IF NOT EXISTS headers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    blob_id TEXT NOT NULL DEFAULT '',
    blob_version TEXT NOT NULL DEFAULT '',
    blob_current INTEGER NOT NULL DEFAULT 0,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    modification_time TEXT NOT NULL, -- RFC3339Nano
    pub_id TEXT NOT NULL DEFAULT '',
    pub_current INTEGER NOT NULL DEFAULT 0,
    target TEXT NOT NULL DEFAULT '',
    edit_seq INTEGER NOT NULL DEFAULT 0 -- bumped by every user edit
);

CREATE INDEX IF NOT EXISTS idx_headers_blob_id ON headers(blob_id);

CREATE TABLE IF NOT EXISTS texts (
    header_id TEXT NOT NULL REFERENCES headers(id) ON DELETE CASCADE,
    path TEXT NOT NULL,
    content TEXT NOT NULL,
    PRIMARY KEY (header_id, path)
);

CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
