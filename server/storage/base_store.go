package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/identity"
)

// BaseStore implements Store on top of database/sql for every dialect.
// Queries use ? placeholders and are rebound for PostgreSQL.
type BaseStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewBaseStore wraps an open connection.
func NewBaseStore(db *sql.DB, dialect Dialect) *BaseStore {
	return &BaseStore{db: db, dialect: dialect}
}

// DB returns the underlying connection pool.
func (s *BaseStore) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect in use.
func (s *BaseStore) Dialect() Dialect { return s.dialect }

// Close closes the database connection.
func (s *BaseStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *BaseStore) query(q string) string {
	if s.dialect.Name() == "postgres" {
		return ConvertPlaceholders(q)
	}
	return q
}

func (s *BaseStore) execContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.query(query), args...)
}

func (s *BaseStore) queryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.query(query), args...)
}

func (s *BaseStore) queryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.query(query), args...)
}

// initSchema creates tables and indexes for the current dialect.
func (s *BaseStore) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	_, err := s.execContext(ctx,
		`INSERT INTO schema_version (version, applied_at) SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM schema_version WHERE version = ?)`,
		schemaVersion, time.Now().UTC(), schemaVersion)
	return err
}

// ============================================================================
// Printers
// ============================================================================

const printerColumns = `id, ip_address, serial_number, mac_address, model, snmp_community,
	last_match_rule, last_updated, created_at`

// CreatePrinter inserts p and sets its ID. The MAC is stored normalized.
func (s *BaseStore) CreatePrinter(ctx context.Context, p *Printer) error {
	p.IPAddress = strings.TrimSpace(p.IPAddress)
	if p.IPAddress == "" {
		return fmt.Errorf("printer ip_address is required")
	}
	p.SerialNumber = strings.TrimSpace(p.SerialNumber)
	p.MACAddress = identity.NormalizeMAC(p.MACAddress)
	if p.SNMPCommunity == "" {
		p.SNMPCommunity = "public"
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO printers (ip_address, serial_number, mac_address, model, snmp_community, last_match_rule, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		` + s.dialect.ReturningClause("id")

	err := s.queryRowContext(ctx, query,
		p.IPAddress, p.SerialNumber, p.MACAddress, p.Model, p.SNMPCommunity, p.LastMatchRule, p.CreatedAt,
	).Scan(&p.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("printer %s: %w", p.IPAddress, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create printer: %w", err)
	}
	logDebug("Printer created", "id", p.ID, "ip", p.IPAddress)
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrinter(row rowScanner) (*Printer, error) {
	var p Printer
	var lastUpdated sql.NullTime
	if err := row.Scan(&p.ID, &p.IPAddress, &p.SerialNumber, &p.MACAddress, &p.Model,
		&p.SNMPCommunity, &p.LastMatchRule, &lastUpdated, &p.CreatedAt); err != nil {
		return nil, err
	}
	if lastUpdated.Valid {
		p.LastUpdated = lastUpdated.Time
	}
	return &p, nil
}

func (s *BaseStore) getPrinterWhere(ctx context.Context, where string, arg interface{}) (*Printer, error) {
	row := s.queryRowContext(ctx, `SELECT `+printerColumns+` FROM printers WHERE `+where, arg)
	p, err := scanPrinter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// GetPrinter loads a printer by id.
func (s *BaseStore) GetPrinter(ctx context.Context, id int64) (*Printer, error) {
	p, err := s.getPrinterWhere(ctx, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("printer %d: %w", id, err)
	}
	return p, nil
}

// GetPrinterByIP loads a printer by its unique IP address.
func (s *BaseStore) GetPrinterByIP(ctx context.Context, ip string) (*Printer, error) {
	p, err := s.getPrinterWhere(ctx, "ip_address = ?", strings.TrimSpace(ip))
	if err != nil {
		return nil, fmt.Errorf("printer %s: %w", ip, err)
	}
	return p, nil
}

func (s *BaseStore) listPrinters(ctx context.Context, where string, args ...interface{}) ([]*Printer, error) {
	query := `SELECT ` + printerColumns + ` FROM printers`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY id`

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var printers []*Printer
	for rows.Next() {
		p, err := scanPrinter(rows)
		if err != nil {
			return nil, err
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}

// FindPrintersByMAC returns every printer whose stored MAC equals mac.
func (s *BaseStore) FindPrintersByMAC(ctx context.Context, mac string) ([]*Printer, error) {
	norm := identity.NormalizeMAC(mac)
	if norm == "" {
		return nil, nil
	}
	return s.listPrinters(ctx, "mac_address = ?", norm)
}

// ListPrinters returns all printers ordered by id.
func (s *BaseStore) ListPrinters(ctx context.Context) ([]*Printer, error) {
	return s.listPrinters(ctx, "")
}

// ListPrintersByMatchRule returns printers whose last successful poll
// matched with rule, for example MAC_ONLY.
func (s *BaseStore) ListPrintersByMatchRule(ctx context.Context, rule string) ([]*Printer, error) {
	return s.listPrinters(ctx, "last_match_rule = ?", rule)
}

// ============================================================================
// Inventory history
// ============================================================================

// RecordOutcome persists out as an immutable task row. On success it also
// writes the page counter and updates the printer's last match rule. A
// discovered MAC and the reported model fill the printer's fields only
// when they are empty.
func (s *BaseStore) RecordOutcome(ctx context.Context, printerID int64, out inventory.Outcome, at time.Time) (*InventoryTask, error) {
	at = at.UTC()
	task := &InventoryTask{
		PrinterID:    printerID,
		Timestamp:    at,
		Status:       string(out.Status()),
		ErrorMessage: out.Reason,
		MatchRule:    string(out.Rule),
		Reflashed:    out.Reflashed,
	}
	if !out.OK() {
		task.MatchRule = ""
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, s.query(`
		INSERT INTO inventory_tasks (printer_id, task_timestamp, status, error_message, match_rule, reflashed)
		VALUES (?, ?, ?, ?, ?, ?)
		`+s.dialect.ReturningClause("id")),
		task.PrinterID, task.Timestamp, task.Status, task.ErrorMessage, task.MatchRule, task.Reflashed,
	).Scan(&task.ID)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	if out.OK() {
		supplies, err := json.Marshal(out.Supplies)
		if err != nil {
			return nil, fmt.Errorf("encode supplies: %w", err)
		}
		c := &PageCounter{
			TaskID:     task.ID,
			BWA3:       out.Counters.BWA3,
			BWA4:       out.Counters.BWA4,
			ColorA3:    out.Counters.ColorA3,
			ColorA4:    out.Counters.ColorA4,
			TotalPages: out.Counters.TotalPages,
			Supplies:   out.Supplies,
			RecordedAt: at,
		}
		err = tx.QueryRowContext(ctx, s.query(`
			INSERT INTO page_counters (task_id, bw_a3, bw_a4, color_a3, color_a4, total_pages, supplies, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`+s.dialect.ReturningClause("id")),
			c.TaskID, nullInt(c.BWA3), nullInt(c.BWA4), nullInt(c.ColorA3), nullInt(c.ColorA4),
			c.TotalPages, string(supplies), c.RecordedAt,
		).Scan(&c.ID)
		if err != nil {
			return nil, fmt.Errorf("insert page counter: %w", err)
		}
		task.Counter = c

		if _, err := tx.ExecContext(ctx, s.query(
			`UPDATE printers SET last_match_rule = ?, last_updated = ? WHERE id = ?`),
			task.MatchRule, at, printerID); err != nil {
			return nil, fmt.Errorf("update match rule: %w", err)
		}
		if out.DiscoveredMAC != "" {
			if _, err := tx.ExecContext(ctx, s.query(
				`UPDATE printers SET mac_address = ? WHERE id = ? AND mac_address = ''`),
				out.DiscoveredMAC, printerID); err != nil {
				return nil, fmt.Errorf("update mac: %w", err)
			}
		}
		if model := strings.TrimSpace(out.Identity.Model); model != "" {
			if _, err := tx.ExecContext(ctx, s.query(
				`UPDATE printers SET model = ? WHERE id = ? AND model = ''`),
				model, printerID); err != nil {
				return nil, fmt.Errorf("update model: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return task, nil
}

const taskColumns = `t.id, t.printer_id, t.task_timestamp, t.status, t.error_message, t.match_rule, t.reflashed,
	c.id, c.bw_a3, c.bw_a4, c.color_a3, c.color_a4, c.total_pages, c.supplies, c.recorded_at`

func scanTask(row rowScanner) (*InventoryTask, error) {
	var (
		t                         InventoryTask
		cID, bwA3, bwA4, cA3, cA4 sql.NullInt64
		total                     sql.NullInt64
		supplies                  sql.NullString
		recordedAt                sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.PrinterID, &t.Timestamp, &t.Status, &t.ErrorMessage, &t.MatchRule, &t.Reflashed,
		&cID, &bwA3, &bwA4, &cA3, &cA4, &total, &supplies, &recordedAt); err != nil {
		return nil, err
	}
	if cID.Valid {
		c := &PageCounter{
			ID:         cID.Int64,
			TaskID:     t.ID,
			BWA3:       intFromNull(bwA3),
			BWA4:       intFromNull(bwA4),
			ColorA3:    intFromNull(cA3),
			ColorA4:    intFromNull(cA4),
			TotalPages: int(total.Int64),
			RecordedAt: recordedAt.Time,
		}
		if supplies.Valid && supplies.String != "" {
			if err := json.Unmarshal([]byte(supplies.String), &c.Supplies); err != nil {
				logWarn("Ignoring undecodable supplies", "task_id", t.ID, "error", err)
			}
		}
		t.Counter = c
	}
	return &t, nil
}

// ListTasks returns a printer's tasks newest first. limit <= 0 means all.
func (s *BaseStore) ListTasks(ctx context.Context, printerID int64, limit int) ([]*InventoryTask, error) {
	query := `SELECT ` + taskColumns + `
		FROM inventory_tasks t
		LEFT JOIN page_counters c ON c.task_id = t.id
		WHERE t.printer_id = ?
		ORDER BY t.task_timestamp DESC, t.id DESC ` + s.dialect.LimitOffset(limit, 0)

	rows, err := s.queryContext(ctx, query, printerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*InventoryTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// LatestCounter returns the counter of the printer's newest successful task.
func (s *BaseStore) LatestCounter(ctx context.Context, printerID int64) (*PageCounter, error) {
	query := `SELECT ` + taskColumns + `
		FROM inventory_tasks t
		JOIN page_counters c ON c.task_id = t.id
		WHERE t.printer_id = ? AND t.status = ?
		ORDER BY t.task_timestamp DESC, t.id DESC ` + s.dialect.LimitOffset(1, 0)

	t, err := scanTask(s.queryRowContext(ctx, query, printerID, string(inventory.StatusSuccess)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("counter for printer %d: %w", printerID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return t.Counter, nil
}

type taskRef struct {
	id        int64
	printerID int64
	at        time.Time
	success   bool
	expired   bool
}

// PruneTasks thins out old history according to policy. Page counters of
// deleted tasks are deleted with them.
func (s *BaseStore) PruneTasks(ctx context.Context, policy PrunePolicy) (PruneResult, error) {
	var res PruneResult
	if policy.KeepDays <= 0 || policy.ArchiveDays <= policy.KeepDays {
		return res, fmt.Errorf("invalid retention: keep_days=%d archive_days=%d", policy.KeepDays, policy.ArchiveDays)
	}
	now := policy.Now
	if now.IsZero() {
		now = time.Now()
	}
	keepCutoff := now.UTC().AddDate(0, 0, -policy.KeepDays)
	archiveCutoff := now.UTC().AddDate(0, 0, -policy.ArchiveDays)

	rows, err := s.queryContext(ctx,
		`SELECT id, printer_id, task_timestamp, status FROM inventory_tasks
		 WHERE task_timestamp < ?
		 ORDER BY printer_id, task_timestamp, id`,
		keepCutoff)
	if err != nil {
		return res, err
	}
	var refs []taskRef
	for rows.Next() {
		var r taskRef
		var status string
		if err := rows.Scan(&r.id, &r.printerID, &r.at, &status); err != nil {
			rows.Close()
			return res, err
		}
		r.success = status == string(inventory.StatusSuccess)
		r.expired = r.at.Before(archiveCutoff)
		if r.expired {
			res.Expired++
		}
		refs = append(refs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, err
	}

	doomed := selectPrunable(refs)
	res.Examined = len(refs)
	res.Deleted = len(doomed)
	res.Kept = len(refs) - len(doomed)
	if policy.DryRun || len(doomed) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	const batch = 500
	for start := 0; start < len(doomed); start += batch {
		end := min(start+batch, len(doomed))
		ids := make([]interface{}, 0, end-start)
		for _, id := range doomed[start:end] {
			ids = append(ids, id)
		}
		set := PlaceholderSet(s.dialect, len(ids), 1)
		if _, err := tx.ExecContext(ctx, `DELETE FROM page_counters WHERE task_id IN (`+set+`)`, ids...); err != nil {
			return res, fmt.Errorf("delete counters: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_tasks WHERE id IN (`+set+`)`, ids...); err != nil {
			return res, fmt.Errorf("delete tasks: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	logInfo("Pruned inventory history", "deleted", res.Deleted, "expired", res.Expired, "kept", res.Kept)
	return res, nil
}

// selectPrunable returns the ids of refs to delete: every expired ref, and
// of the rest everything except the last SUCCESS task per printer per UTC day.
func selectPrunable(refs []taskRef) []int64 {
	type dayKey struct {
		printerID int64
		day       string
	}
	keep := make(map[dayKey]taskRef)
	for _, r := range refs {
		if !r.success || r.expired {
			continue
		}
		k := dayKey{r.printerID, r.at.UTC().Format("2006-01-02")}
		cur, ok := keep[k]
		if !ok || r.at.After(cur.at) || (r.at.Equal(cur.at) && r.id > cur.id) {
			keep[k] = r
		}
	}
	kept := make(map[int64]struct{}, len(keep))
	for _, r := range keep {
		kept[r.id] = struct{}{}
	}

	var doomed []int64
	for _, r := range refs {
		if _, ok := kept[r.id]; !ok {
			doomed = append(doomed, r.id)
		}
	}
	sort.Slice(doomed, func(i, j int) bool { return doomed[i] < doomed[j] })
	return doomed
}

// Stats counts printers, tasks per status and stored counters.
func (s *BaseStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{TasksByStatus: make(map[string]int)}
	if err := s.queryRowContext(ctx, `SELECT COUNT(*) FROM printers`).Scan(&st.Printers); err != nil {
		return nil, err
	}
	if err := s.queryRowContext(ctx, `SELECT COUNT(*) FROM page_counters`).Scan(&st.Counters); err != nil {
		return nil, err
	}

	rows, err := s.queryContext(ctx, `SELECT status, COUNT(*) FROM inventory_tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		st.TasksByStatus[status] = n
		st.Tasks += n
	}
	return st, rows.Err()
}
