package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/counters"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/identity"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/rawdoc"
	"github.com/hlebuschek/printer-inventory-django-sub001/server/storage"
)

// Store is the storage subset the service needs. storage.Store satisfies it.
type Store interface {
	GetPrinter(ctx context.Context, id int64) (*storage.Printer, error)
	GetPrinterByIP(ctx context.Context, ip string) (*storage.Printer, error)
	FindPrintersByMAC(ctx context.Context, mac string) ([]*storage.Printer, error)
	ListPrinters(ctx context.Context) ([]*storage.Printer, error)
	RecordOutcome(ctx context.Context, printerID int64, out inventory.Outcome, at time.Time) (*storage.InventoryTask, error)
	LatestCounter(ctx context.Context, printerID int64) (*storage.PageCounter, error)
}

// Config tunes the service.
type Config struct {
	// Workers bounds concurrent runs for Submit and RunAll.
	Workers int
	// QueueSize is the number of submitted runs that may wait for a worker.
	QueueSize int
	// MinAgentVersion, when set, logs reports from older agents.
	MinAgentVersion string
	// RegressionWarnInterval rate-limits counter regression warnings per printer.
	RegressionWarnInterval time.Duration
	// PersistTimeout bounds writing an outcome after the run context ended.
	PersistTimeout time.Duration
}

const (
	DefaultWorkers   = 5
	DefaultQueueSize = 100
)

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.RegressionWarnInterval <= 0 {
		c.RegressionWarnInterval = time.Hour
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 30 * time.Second
	}
	return c
}

// SubmitStatus is the non-error result of Submit.
type SubmitStatus string

const (
	Queued         SubmitStatus = "queued"
	AlreadyRunning SubmitStatus = "already_running"
)

// Result describes one completed run.
type Result struct {
	PrinterID int64
	RunID     string
	Outcome   inventory.Outcome
	Task      *storage.InventoryTask
	// Regressed lists counter fields lower than in the previous success.
	Regressed []string
}

// Summary aggregates a RunAll pass.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

type job struct {
	printerID int64
	xmlPath   string
}

// Service runs inventory polls. Runs for the same printer never overlap.
type Service struct {
	store  Store
	poller Poller
	prober Prober
	pub    Publisher
	guard  *Guard
	cfg    Config
	now    func() time.Time

	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewService builds a service. Call Start before Submit.
func NewService(store Store, p Poller, cfg Config) *Service {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:  store,
		poller: p,
		guard:  NewGuard(),
		cfg:    cfg,
		now:    time.Now,
		jobs:   make(chan job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetPublisher sets where progress events go. nil disables events.
func (s *Service) SetPublisher(p Publisher) { s.pub = p }

// SetProber enables the SNMP preflight check. nil disables it.
func (s *Service) SetProber(p Prober) { s.prober = p }

// Guard exposes the in-flight guard.
func (s *Service) Guard() *Guard { return s.guard }

// Start launches the worker pool.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	logInfo("Inventory workers started", "workers", s.cfg.Workers, "queue", s.cfg.QueueSize)
}

// Stop cancels running polls, waits for workers and drops queued jobs.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	for {
		select {
		case j := <-s.jobs:
			s.guard.Release(j.printerID)
		default:
			logInfo("Inventory workers stopped")
			return
		}
	}
}

func (s *Service) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case j := <-s.jobs:
			s.runJob(j)
		}
	}
}

func (s *Service) runJob(j job) {
	defer s.guard.Release(j.printerID)
	p, err := s.store.GetPrinter(s.ctx, j.printerID)
	if err != nil {
		logError("Queued inventory skipped", "printer_id", j.printerID, "error", err)
		return
	}
	if _, err := s.run(s.ctx, p, j.xmlPath); err != nil {
		logError("Queued inventory failed", "printer_id", j.printerID, "error", err)
	}
}

// Submit queues a run without blocking. xmlPath, when set, is processed
// instead of polling the device.
func (s *Service) Submit(printerID int64, xmlPath string) (SubmitStatus, error) {
	// Held until the job is queued so Stop cannot drain in between.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", ErrStopped
	}
	if !s.guard.TryAcquire(printerID) {
		return AlreadyRunning, nil
	}
	select {
	case s.jobs <- job{printerID: printerID, xmlPath: xmlPath}:
		logDebug("Inventory queued", "printer_id", printerID)
		return Queued, nil
	default:
		s.guard.Release(printerID)
		return "", ErrQueueFull
	}
}

// RunInventory polls one printer synchronously. Pipeline failures are
// reported in Result.Outcome; the error is for lookup, concurrency and
// persistence problems.
func (s *Service) RunInventory(ctx context.Context, printerID int64, xmlPath string) (*Result, error) {
	p, err := s.store.GetPrinter(ctx, printerID)
	if err != nil {
		return nil, err
	}
	if !s.guard.TryAcquire(printerID) {
		return nil, fmt.Errorf("printer %d: %w", printerID, ErrAlreadyRunning)
	}
	defer s.guard.Release(printerID)
	return s.run(ctx, p, xmlPath)
}

// run executes one poll. The caller holds the guard for p.
func (s *Service) run(ctx context.Context, p *storage.Printer, xmlPath string) (*Result, error) {
	res := &Result{PrinterID: p.ID, RunID: uuid.NewString()}
	s.publish(startEvent(p, res.RunID))
	logInfo("Inventory started", "printer_id", p.ID, "ip", p.IPAddress, "run_id", res.RunID, "import", xmlPath != "")

	var prev *storage.PageCounter
	if c, err := s.store.LatestCounter(ctx, p.ID); err == nil {
		prev = c
	} else if !errors.Is(err, storage.ErrNotFound) {
		logWarn("Failed to load previous counters", "printer_id", p.ID, "error", err)
	}

	res.Outcome = s.evaluate(ctx, p, xmlPath)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	defer cancel()
	task, err := s.store.RecordOutcome(persistCtx, p.ID, res.Outcome, s.now())
	if err != nil {
		err = fmt.Errorf("record outcome for printer %d: %w", p.ID, err)
		logError("Failed to persist inventory", "printer_id", p.ID, "run_id", res.RunID, "error", err)
		s.publish(errorEvent(p.ID, res.RunID, err))
		return res, err
	}
	res.Task = task

	if res.Outcome.OK() && prev != nil {
		res.Regressed = counters.Regressed(prev.Snapshot(), res.Outcome.Counters)
		if len(res.Regressed) > 0 {
			warnEvery(fmt.Sprintf("regression:%d", p.ID), s.cfg.RegressionWarnInterval,
				"Page counters decreased", "printer_id", p.ID, "ip", p.IPAddress, "fields", res.Regressed)
		}
	}
	if res.Outcome.Reflashed {
		logWarn("Serial changed with matching MAC", "printer_id", p.ID, "expected", p.SerialNumber, "found", res.Outcome.Identity.Serial)
	}

	s.publish(updateEvent(p, res))
	logInfo("Inventory finished", "printer_id", p.ID, "run_id", res.RunID,
		"status", res.Outcome.Status(), "detail", outcomeSummary(res.Outcome))
	return res, nil
}

func (s *Service) evaluate(ctx context.Context, p *storage.Printer, xmlPath string) inventory.Outcome {
	target := Target{IP: p.IPAddress, Community: p.SNMPCommunity}
	if xmlPath == "" {
		if s.prober != nil {
			if info, err := s.prober.Probe(ctx, target); err != nil {
				logWarn("SNMP preflight failed", "printer_id", p.ID, "ip", p.IPAddress, "error", err)
			} else {
				logDebug("SNMP preflight", "printer_id", p.ID, "sys_descr", info.Descr,
					"sys_object_id", info.ObjectID, "serial", info.Serial, "life_count", info.LifeCount)
				if info.Serial != "" && p.SerialNumber != "" && !strings.EqualFold(info.Serial, strings.TrimSpace(p.SerialNumber)) {
					logWarn("SNMP serial differs from record", "printer_id", p.ID, "snmp_serial", info.Serial, "expected", p.SerialNumber)
				}
			}
		}
		if s.poller == nil {
			return inventory.PollFailed("no poller configured")
		}
		path, err := s.poller.Poll(ctx, target)
		if err != nil {
			return inventory.PollFailed(err.Error())
		}
		xmlPath = path
	}

	doc, err := rawdoc.ParseFile(xmlPath)
	if err != nil {
		return inventory.ParseFailed(err)
	}
	if s.cfg.MinAgentVersion != "" {
		if v, ok, err := CheckAgentVersion(doc, s.cfg.MinAgentVersion); err != nil {
			logWarn("Agent version check skipped", "error", err)
		} else if !ok {
			warnEvery("agent-version:"+v.String(), time.Hour, "Report from outdated agent",
				"printer_id", p.ID, "version", v.String(), "minimum", s.cfg.MinAgentVersion)
		}
	}
	return inventory.Process(doc, p.Expected(), p.MACAddress)
}

// RunAll polls every printer with at most Workers runs in flight. Printers
// already running are skipped. One failing printer never stops the others.
func (s *Service) RunAll(ctx context.Context) (Summary, error) {
	printers, err := s.store.ListPrinters(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list printers: %w", err)
	}

	var (
		mu  sync.Mutex
		sum = Summary{Total: len(printers)}
	)
	count := func(fn func(*Summary)) {
		mu.Lock()
		fn(&sum)
		mu.Unlock()
	}

	p := pool.New().WithMaxGoroutines(s.cfg.Workers)
	for _, printer := range printers {
		printer := printer
		p.Go(func() {
			if ctx.Err() != nil || !s.guard.TryAcquire(printer.ID) {
				count(func(sm *Summary) { sm.Skipped++ })
				return
			}
			defer s.guard.Release(printer.ID)

			res, err := s.run(ctx, printer, "")
			switch {
			case err != nil:
				count(func(sm *Summary) { sm.Errors++ })
			case res.Outcome.OK():
				count(func(sm *Summary) { sm.Succeeded++ })
			default:
				count(func(sm *Summary) { sm.Failed++ })
			}
		})
	}
	p.Wait()

	logInfo("Inventory pass finished", "total", sum.Total, "succeeded", sum.Succeeded,
		"failed", sum.Failed, "skipped", sum.Skipped, "errors", sum.Errors)
	return sum, ctx.Err()
}

// Discoverer runs a discovery-only poll. *GLPIAgent satisfies it.
type Discoverer interface {
	Discover(ctx context.Context, t Target) (string, error)
}

// Discovery is what a discovery-only poll reveals about a device.
type Discovery struct {
	IP           string `json:"ip_address"`
	Serial       string `json:"serial_number"`
	MAC          string `json:"mac_address"`
	Model        string `json:"model,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

// Discover identifies the device at ip without recording anything. It is
// used to prefill a new printer record.
func (s *Service) Discover(ctx context.Context, ip, community string) (*Discovery, error) {
	d, ok := s.poller.(Discoverer)
	if !ok {
		return nil, errors.New("configured poller does not support discovery")
	}
	path, err := d.Discover(ctx, Target{IP: ip, Community: community})
	if err != nil {
		return nil, err
	}
	doc, err := rawdoc.ParseFile(path)
	if err != nil {
		return nil, err
	}
	found := identity.Identify(doc)
	return &Discovery{
		IP:           ip,
		Serial:       found.Serial,
		MAC:          found.MAC,
		Model:        found.Model,
		Manufacturer: found.Manufacturer,
	}, nil
}
