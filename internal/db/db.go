// Package db provides SQLite storage for mailorders.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/daviddao/mailorders/internal/consolidate"
	"github.com/daviddao/mailorders/internal/types"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = eris.New("order not found")

// Dir and File name the database location under the project root.
const (
	Dir  = ".mailorders"
	File = "orders.db"
)

// DB wraps a SQLite connection for mailorders operations.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) a mailorders database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "create directory %s", dir)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, eris.Wrap(err, "open database")
	}
	// One writer; sync workers share the connection.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "initialize schema")
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Now returns the current time as an ISO 8601 string.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// DiscoverDB finds the database by walking up from cwd. Returns the path to
// .mailorders/orders.db or empty string if not found.
func DiscoverDB() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, Dir, File)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// FindProjectRoot walks up from cwd looking for a .git directory.
func FindProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// --- Order operations ---

const orderColumns = `order_number, statuses_seen, message_count, message_ids,
	canonical, reconciled_by, created_at, updated_at`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

// UpsertOrder stores o, folding it into any stored version of the same order.
// The stored canonical status is never replaced by a lower-priority one.
func (d *DB) UpsertOrder(o *types.ConsolidatedOrder) (*types.StoredOrder, error) {
	if o == nil || o.OrderNumber == "" {
		return nil, eris.New("upsert order: missing order number")
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return nil, eris.Wrap(err, "begin")
	}
	defer tx.Rollback()

	stored, err := getOrder(tx, o.OrderNumber)
	if err != nil && !eris.Is(err, ErrNotFound) {
		return nil, err
	}

	now := Now()
	if stored == nil {
		stored = &types.StoredOrder{ConsolidatedOrder: *o, CreatedAt: now}
	} else {
		stored.ConsolidatedOrder = *consolidate.Combine(&stored.ConsolidatedOrder, o)
		stored.UpdatedAt = now
	}

	if err := writeOrder(tx, stored); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "commit")
	}
	return stored, nil
}

// DeliveryUpdate carries reconciliation evidence for one order.
type DeliveryUpdate struct {
	Strategy       string
	Delivered      bool
	Priority       int
	MessageIDs     []string
	TrackingNumber string
	Carrier        string
}

// ApplyDelivery records reconciliation evidence. A delivered verdict sets the
// Delivered status unless the stored status outranks it; a missing tracking
// number is backfilled either way. It reports whether the order changed.
func (d *DB) ApplyDelivery(orderNumber string, u DeliveryUpdate) (bool, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return false, eris.Wrap(err, "begin")
	}
	defer tx.Rollback()

	o, err := getOrder(tx, orderNumber)
	if err != nil {
		return false, err
	}

	changed := false
	if u.Delivered && o.Canonical.Status != types.StatusDelivered && u.Priority >= o.Canonical.Priority {
		o.Canonical.Status = types.StatusDelivered
		o.Canonical.Priority = u.Priority
		o.Canonical.Category = "delivered"
		o.Canonical.Color = "green"
		o.ReconciledBy = u.Strategy
		changed = true
	}
	if u.Delivered && !containsStatus(o.StatusesSeen, types.StatusDelivered) {
		o.StatusesSeen = append(o.StatusesSeen, types.StatusDelivered)
		changed = true
	}
	if o.Canonical.TrackingNumber == "" && u.TrackingNumber != "" {
		o.Canonical.TrackingNumber = u.TrackingNumber
		o.Canonical.Carrier = u.Carrier
		o.Canonical.ShippingStatus = types.ShippingShipped
		changed = true
	}
	if !changed {
		return false, nil
	}

	o.UpdatedAt = Now()
	if err := writeOrder(tx, o); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "commit")
	}
	return true, nil
}

// GetOrder returns one stored order.
func (d *DB) GetOrder(orderNumber string) (*types.StoredOrder, error) {
	return getOrder(d.conn, orderNumber)
}

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	Status types.Status
	Limit  int
}

// ListOrders returns stored orders, newest email first.
func (d *DB) ListOrders(f OrderFilter) ([]*types.StoredOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY email_date DESC, order_number`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return d.queryOrders(query, args...)
}

// OrdersAwaitingDelivery returns orders that are neither delivered nor
// canceled, oldest first.
func (d *DB) OrdersAwaitingDelivery(limit int) ([]*types.StoredOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE status NOT IN (?, ?)
		ORDER BY email_date ASC, order_number`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return d.queryOrders(query, string(types.StatusDelivered), string(types.StatusCanceled))
}

// OrderCount returns the total number of orders.
func (d *DB) OrderCount() int {
	var n int
	d.conn.QueryRow("SELECT COUNT(*) FROM orders").Scan(&n)
	return n
}

// StatusCounts returns the number of orders per canonical status.
func (d *DB) StatusCounts() (map[types.Status]int, error) {
	rows, err := d.conn.Query("SELECT status, COUNT(*) FROM orders GROUP BY status")
	if err != nil {
		return nil, eris.Wrap(err, "status counts")
	}
	defer rows.Close()

	counts := make(map[types.Status]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, eris.Wrap(err, "scan status count")
		}
		counts[types.Status(s)] = n
	}
	return counts, rows.Err()
}

func (d *DB) queryOrders(query string, args ...any) ([]*types.StoredOrder, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "query orders")
	}
	defer rows.Close()

	var out []*types.StoredOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func getOrder(q querier, orderNumber string) (*types.StoredOrder, error) {
	row := q.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE order_number = ?`, orderNumber)
	o, err := scanOrder(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "order %s", orderNumber)
	}
	return o, err
}

func scanOrder(s scanner) (*types.StoredOrder, error) {
	o := &types.StoredOrder{}
	var seen, canonical string
	var ids, reconciled, updated sql.NullString
	if err := s.Scan(&o.OrderNumber, &seen, &o.MessageCount, &ids,
		&canonical, &reconciled, &o.CreatedAt, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "scan order")
	}
	if err := json.Unmarshal([]byte(canonical), &o.Canonical); err != nil {
		return nil, eris.Wrapf(err, "decode order %s", o.OrderNumber)
	}
	for _, s := range splitList(seen) {
		o.StatusesSeen = append(o.StatusesSeen, types.Status(s))
	}
	o.MessageIDs = splitList(ids.String)
	o.ReconciledBy = reconciled.String
	o.UpdatedAt = updated.String
	return o, nil
}

func writeOrder(q querier, o *types.StoredOrder) error {
	canonical, err := json.Marshal(o.Canonical)
	if err != nil {
		return eris.Wrap(err, "encode canonical event")
	}
	seen := make([]string, len(o.StatusesSeen))
	for i, s := range o.StatusesSeen {
		seen[i] = string(s)
	}

	c := o.Canonical
	_, err = q.Exec(`
		INSERT INTO orders
			(order_number, merchant, order_type, product_name, size, status, priority,
			 tracking_number, carrier, total_amount, currency, email_date,
			 statuses_seen, message_count, message_ids, canonical, reconciled_by,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_number) DO UPDATE SET
			merchant = excluded.merchant,
			order_type = excluded.order_type,
			product_name = excluded.product_name,
			size = excluded.size,
			status = excluded.status,
			priority = excluded.priority,
			tracking_number = excluded.tracking_number,
			carrier = excluded.carrier,
			total_amount = excluded.total_amount,
			currency = excluded.currency,
			email_date = excluded.email_date,
			statuses_seen = excluded.statuses_seen,
			message_count = excluded.message_count,
			message_ids = excluded.message_ids,
			canonical = excluded.canonical,
			reconciled_by = excluded.reconciled_by,
			updated_at = excluded.updated_at`,
		o.OrderNumber, c.Merchant, string(c.OrderType), c.ProductName, c.Size,
		string(c.Status), c.Priority, c.TrackingNumber, c.Carrier, c.TotalAmount,
		c.Currency, c.EmailDate, strings.Join(seen, ","), o.MessageCount,
		strings.Join(o.MessageIDs, ","), string(canonical), nullIfEmpty(o.ReconciledBy),
		o.CreatedAt, nullIfEmpty(o.UpdatedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "write order %s", o.OrderNumber)
	}
	return nil
}

// --- History operations ---

// RecordEvent adds one message-level observation to an order's history.
// Recording the same message twice is a no-op.
func (d *DB) RecordEvent(ev types.ClassifiedEvent) error {
	if ev.OrderNumber == "" || ev.MessageID == "" {
		return nil
	}
	_, err := d.conn.Exec(`
		INSERT OR IGNORE INTO order_history
			(order_number, message_id, status, priority, subject, email_date, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.OrderNumber, ev.MessageID, string(ev.Status), ev.Priority, ev.Subject, ev.EmailDate, Now(),
	)
	if err != nil {
		return eris.Wrapf(err, "record event %s", ev.MessageID)
	}
	return nil
}

// History returns an order's observations in email order.
func (d *DB) History(orderNumber string) ([]types.HistoryEntry, error) {
	rows, err := d.conn.Query(`
		SELECT order_number, message_id, status, priority, subject, email_date
		FROM order_history
		WHERE order_number = ?
		ORDER BY email_date ASC, recorded_at ASC`, orderNumber)
	if err != nil {
		return nil, eris.Wrap(err, "query history")
	}
	defer rows.Close()

	var out []types.HistoryEntry
	for rows.Next() {
		var h types.HistoryEntry
		var status string
		var subject, date sql.NullString
		if err := rows.Scan(&h.OrderNumber, &h.MessageID, &status, &h.Priority, &subject, &date); err != nil {
			return nil, eris.Wrap(err, "scan history")
		}
		h.Status = types.Status(status)
		h.Subject = subject.String
		h.EmailDate = date.String
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- Processed message operations ---

// Outcomes recorded for processed messages.
const (
	OutcomeOrder    = "order"
	OutcomeFiltered = "filtered"
	OutcomeIgnored  = "ignored"
)

// MarkProcessed records that a message has been handled.
func (d *DB) MarkProcessed(id, account, orderNumber, outcome, emailDate string) error {
	_, err := d.conn.Exec(`
		INSERT OR REPLACE INTO processed_messages
			(id, account, order_number, outcome, email_date, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, account, nullIfEmpty(orderNumber), outcome, nullIfEmpty(emailDate), Now(),
	)
	if err != nil {
		return eris.Wrapf(err, "mark processed %s", id)
	}
	return nil
}

// MessageExists checks if a message ID has already been processed.
func (d *DB) MessageExists(id string) bool {
	var n int
	d.conn.QueryRow("SELECT 1 FROM processed_messages WHERE id = ?", id).Scan(&n)
	return n == 1
}

// LatestEmailDate returns the most recent processed email date for an account.
func (d *DB) LatestEmailDate(account string) string {
	var date sql.NullString
	d.conn.QueryRow("SELECT MAX(email_date) FROM processed_messages WHERE account = ?", account).Scan(&date)
	if date.Valid {
		return date.String
	}
	return ""
}

// --- Sync run operations ---

// StartRun records the start of a sync run and returns its ID.
func (d *DB) StartRun(account string) (string, error) {
	id := uuid.NewString()
	_, err := d.conn.Exec(`INSERT INTO sync_runs (id, account, started_at) VALUES (?, ?, ?)`, id, account, Now())
	if err != nil {
		return "", eris.Wrap(err, "start sync run")
	}
	return id, nil
}

// FinishRun stores the counters of a finished run.
func (d *DB) FinishRun(r *types.SyncResult) error {
	if r == nil || r.RunID == "" {
		return nil
	}
	_, err := d.conn.Exec(`
		UPDATE sync_runs
		SET finished_at = ?, scanned = ?, skipped = ?, failed = ?, filtered = ?,
		    extracted = ?, orders = ?, error = ?
		WHERE id = ?`,
		Now(), r.Scanned, r.Skipped, r.Failed, r.Filtered, r.Extracted, r.Orders,
		nullIfEmpty(r.Error), r.RunID,
	)
	if err != nil {
		return eris.Wrapf(err, "finish sync run %s", r.RunID)
	}
	return nil
}

// RecentRuns returns the latest sync runs, newest first.
func (d *DB) RecentRuns(limit int) ([]types.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.conn.Query(`
		SELECT id, account, started_at, finished_at, scanned, skipped, failed,
		       filtered, extracted, orders, error
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "query sync runs")
	}
	defer rows.Close()

	var out []types.SyncRun
	for rows.Next() {
		var r types.SyncRun
		var finished, errText sql.NullString
		if err := rows.Scan(&r.RunID, &r.Account, &r.StartedAt, &finished, &r.Scanned, &r.Skipped,
			&r.Failed, &r.Filtered, &r.Extracted, &r.Orders, &errText); err != nil {
			return nil, eris.Wrap(err, "scan sync run")
		}
		r.FinishedAt = finished.String
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func containsStatus(list []types.Status, s types.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
