package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/counters"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/identity"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique column already holds the value.
	ErrDuplicate = errors.New("already exists")
)

// Printer is a managed device record.
type Printer struct {
	ID            int64     `json:"id"`
	IPAddress     string    `json:"ip_address"`
	SerialNumber  string    `json:"serial_number"`
	MACAddress    string    `json:"mac_address,omitempty"`
	Model         string    `json:"model,omitempty"`
	SNMPCommunity string    `json:"snmp_community"`
	LastMatchRule string    `json:"last_match_rule,omitempty"`
	LastUpdated   time.Time `json:"last_updated"`
	CreatedAt     time.Time `json:"created_at"`
}

// Expected returns the identity a poll of this printer must corroborate.
func (p *Printer) Expected() identity.ExpectedIdentity {
	return identity.ExpectedIdentity{
		Serial: p.SerialNumber,
		MAC:    p.MACAddress,
		IP:     p.IPAddress,
	}
}

// InventoryTask is one persisted poll attempt. Rows are never updated.
type InventoryTask struct {
	ID           int64        `json:"id"`
	PrinterID    int64        `json:"printer_id"`
	Timestamp    time.Time    `json:"task_timestamp"`
	Status       string       `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	MatchRule    string       `json:"match_rule,omitempty"`
	Reflashed    bool         `json:"reflashed,omitempty"`
	Counter      *PageCounter `json:"counter,omitempty"`
}

// PageCounter is the counter snapshot stored for a successful task.
type PageCounter struct {
	ID         int64             `json:"id"`
	TaskID     int64             `json:"task_id"`
	BWA3       *int              `json:"bw_a3"`
	BWA4       *int              `json:"bw_a4"`
	ColorA3    *int              `json:"color_a3"`
	ColorA4    *int              `json:"color_a4"`
	TotalPages int               `json:"total_pages"`
	Supplies   counters.Supplies `json:"supplies"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// Snapshot returns the counters as a normalized snapshot.
func (c *PageCounter) Snapshot() counters.Snapshot {
	return counters.Snapshot{
		BWA3:       c.BWA3,
		BWA4:       c.BWA4,
		ColorA3:    c.ColorA3,
		ColorA4:    c.ColorA4,
		TotalPages: c.TotalPages,
	}
}

// PrunePolicy controls history retention. Tasks newer than KeepDays are
// kept. Between KeepDays and ArchiveDays only the last SUCCESS task per
// printer per calendar day (UTC) is kept. Older tasks are deleted.
type PrunePolicy struct {
	KeepDays    int
	ArchiveDays int
	DryRun      bool
	Now         time.Time
}

// PruneResult reports what PruneTasks did (or would do on a dry run).
type PruneResult struct {
	Examined int `json:"examined"`
	Deleted  int `json:"deleted"`
	Expired  int `json:"expired"`
	Kept     int `json:"kept"`
}

// Stats summarizes the database contents.
type Stats struct {
	Printers      int            `json:"printers"`
	Tasks         int            `json:"tasks"`
	TasksByStatus map[string]int `json:"tasks_by_status"`
	Counters      int            `json:"counters"`
}

// Store is the persistence interface used by the inventory service.
type Store interface {
	// Printers
	CreatePrinter(ctx context.Context, p *Printer) error
	GetPrinter(ctx context.Context, id int64) (*Printer, error)
	GetPrinterByIP(ctx context.Context, ip string) (*Printer, error)
	FindPrintersByMAC(ctx context.Context, mac string) ([]*Printer, error)
	ListPrinters(ctx context.Context) ([]*Printer, error)
	ListPrintersByMatchRule(ctx context.Context, rule string) ([]*Printer, error)

	// History. RecordOutcome stores the task, its counters on success, and
	// the printer enrichment (discovered MAC, model, last match rule)
	// atomically.
	RecordOutcome(ctx context.Context, printerID int64, out inventory.Outcome, at time.Time) (*InventoryTask, error)
	ListTasks(ctx context.Context, printerID int64, limit int) ([]*InventoryTask, error)
	LatestCounter(ctx context.Context, printerID int64) (*PageCounter, error)
	PruneTasks(ctx context.Context, policy PrunePolicy) (PruneResult, error)

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
