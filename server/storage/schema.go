package storage

import "fmt"

const schemaVersion = 1

// schemaStatements returns the DDL for the inventory schema in dialect d.
func schemaStatements(d Dialect) []string {
	ts := d.TimestampType()
	fk := d.IntegerType(true)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at %s NOT NULL
		)`, ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS printers (
			id %s,
			ip_address TEXT NOT NULL UNIQUE,
			serial_number TEXT NOT NULL DEFAULT '',
			mac_address TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			snmp_community TEXT NOT NULL DEFAULT 'public',
			last_match_rule TEXT NOT NULL DEFAULT '',
			last_updated %s,
			created_at %s NOT NULL
		)`, d.AutoIncrement(true), ts, ts),
		`CREATE INDEX IF NOT EXISTS idx_printers_mac ON printers(mac_address)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS inventory_tasks (
			id %s,
			printer_id %s NOT NULL REFERENCES printers(id) ON DELETE CASCADE,
			task_timestamp %s NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			match_rule TEXT NOT NULL DEFAULT '',
			reflashed %s NOT NULL DEFAULT %s
		)`, d.AutoIncrement(true), fk, ts, d.BoolType(), falseLiteral(d)),
		`CREATE INDEX IF NOT EXISTS idx_tasks_printer_time ON inventory_tasks(printer_id, task_timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON inventory_tasks(status)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS page_counters (
			id %s,
			task_id %s NOT NULL UNIQUE REFERENCES inventory_tasks(id) ON DELETE CASCADE,
			bw_a3 %s,
			bw_a4 %s,
			color_a3 %s,
			color_a4 %s,
			total_pages %s NOT NULL DEFAULT 0,
			supplies TEXT NOT NULL DEFAULT '{}',
			recorded_at %s NOT NULL
		)`, d.AutoIncrement(true), fk,
			d.IntegerType(true), d.IntegerType(true), d.IntegerType(true), d.IntegerType(true), d.IntegerType(true), ts),
	}
}

func falseLiteral(d Dialect) string {
	if d.BoolType() == "BOOLEAN" {
		return "FALSE"
	}
	return "0"
}
