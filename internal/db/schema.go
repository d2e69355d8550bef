package db

// Schema is the DDL for the mailorders database.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
    order_number     TEXT PRIMARY KEY,
    merchant         TEXT,
    order_type       TEXT,
    product_name     TEXT,
    size             TEXT,
    status           TEXT NOT NULL,
    priority         INTEGER NOT NULL,
    tracking_number  TEXT,
    carrier          TEXT,
    total_amount     REAL,
    currency         TEXT,
    email_date       TEXT,
    statuses_seen    TEXT NOT NULL,
    message_count    INTEGER NOT NULL DEFAULT 1,
    message_ids      TEXT,
    canonical        TEXT NOT NULL,
    reconciled_by    TEXT,
    created_at       TEXT NOT NULL,
    updated_at       TEXT
);

CREATE TABLE IF NOT EXISTS order_history (
    order_number  TEXT NOT NULL,
    message_id    TEXT NOT NULL,
    status        TEXT NOT NULL,
    priority      INTEGER NOT NULL,
    subject       TEXT,
    email_date    TEXT,
    recorded_at   TEXT NOT NULL,
    PRIMARY KEY (order_number, message_id)
);

CREATE TABLE IF NOT EXISTS processed_messages (
    id            TEXT PRIMARY KEY,
    account       TEXT NOT NULL,
    order_number  TEXT,
    outcome       TEXT NOT NULL,
    email_date    TEXT,
    processed_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_runs (
    id           TEXT PRIMARY KEY,
    account      TEXT NOT NULL,
    started_at   TEXT NOT NULL,
    finished_at  TEXT,
    scanned      INTEGER DEFAULT 0,
    skipped      INTEGER DEFAULT 0,
    failed       INTEGER DEFAULT 0,
    filtered     INTEGER DEFAULT 0,
    extracted    INTEGER DEFAULT 0,
    orders       INTEGER DEFAULT 0,
    error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_email_date ON orders(email_date DESC);
CREATE INDEX IF NOT EXISTS idx_history_order ON order_history(order_number);
CREATE INDEX IF NOT EXISTS idx_processed_account ON processed_messages(account, email_date DESC);
CREATE INDEX IF NOT EXISTS idx_sync_runs_account ON sync_runs(account, started_at DESC);
`
