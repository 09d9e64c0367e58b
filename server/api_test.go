package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/rawdoc"
	"github.com/hlebuschek/printer-inventory-django-sub001/server/poller"
	"github.com/hlebuschek/printer-inventory-django-sub001/server/storage"
)

func doRequest(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

// waitForTasks polls the store until the printer has n tasks.
func waitForTasks(t *testing.T, a *app, printerID int64, n int) []*storage.InventoryTask {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		tasks, err := a.store.ListTasks(context.Background(), printerID, 10)
		if err != nil {
			t.Fatalf("ListTasks: %v", err)
		}
		if len(tasks) >= n {
			return tasks
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d tasks, have %d", n, len(tasks))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealthAndVersion(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil)
	h := a.routes()

	rec := doRequest(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var health map[string]interface{}
	decodeBody(t, rec, &health)
	if health["status"] != "healthy" {
		t.Errorf("unexpected health body: %v", health)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/version", nil)
	var version map[string]string
	decodeBody(t, rec, &version)
	if version["version"] != Version {
		t.Errorf("version = %q, want %q", version["version"], Version)
	}

	rec = doRequest(t, h, http.MethodPost, "/health", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health status = %d, want 405", rec.Code)
	}
}

func TestPrinterEndpoints(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil)
	h := a.routes()

	rec := doRequest(t, h, http.MethodPost, "/api/printers", map[string]string{
		"ip_address":    "10.0.0.5",
		"serial_number": "VNB3K12345",
		"mac_address":   "00-1b-a9-aa-bb-cc",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created storage.Printer
	decodeBody(t, rec, &created)
	if created.ID == 0 || created.MACAddress != "00:1B:A9:AA:BB:CC" || created.SNMPCommunity != "public" {
		t.Fatalf("unexpected created printer: %+v", created)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"duplicate ip", http.MethodPost, "/api/printers", map[string]string{"ip_address": "10.0.0.5"}, http.StatusConflict},
		{"invalid ip", http.MethodPost, "/api/printers", map[string]string{"ip_address": "printer-1"}, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/printers", "{", http.StatusBadRequest},
		{"get", http.MethodGet, fmt.Sprintf("/api/printers/%d", created.ID), nil, http.StatusOK},
		{"get missing", http.MethodGet, "/api/printers/999", nil, http.StatusNotFound},
		{"get bad id", http.MethodGet, "/api/printers/abc", nil, http.StatusBadRequest},
		{"tasks missing printer", http.MethodGet, "/api/printers/999/tasks", nil, http.StatusNotFound},
		{"tasks bad limit", http.MethodGet, fmt.Sprintf("/api/printers/%d/tasks?limit=-1", created.ID), nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := doRequest(t, h, tt.method, tt.path, tt.body)
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d (%s)", tt.name, rec.Code, tt.want, rec.Body.String())
		}
	}

	rec = doRequest(t, h, http.MethodGet, "/api/printers", nil)
	var list []storage.Printer
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].IPAddress != "10.0.0.5" {
		t.Errorf("unexpected printer list: %+v", list)
	}
}

func TestRunInventoryEndpoint(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, reportPoller(t, testReport("VNB3K12345", "00:1b:a9:aa:bb:cc", 1520)))
	h := a.routes()
	p := createTestPrinter(t, a, "10.0.0.5", "VNB3K12345", "00:1b:a9:aa:bb:cc")

	rec := doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/printers/%d/inventory", p.ID), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["status"] != string(poller.Queued) {
		t.Errorf("unexpected body: %v", body)
	}

	tasks := waitForTasks(t, a, p.ID, 1)
	if tasks[0].Status != "SUCCESS" || tasks[0].MatchRule != "SN_MAC" {
		t.Fatalf("unexpected task: %+v", tasks[0])
	}

	rec = doRequest(t, h, http.MethodGet, fmt.Sprintf("/api/printers/%d/tasks?limit=5", p.ID), nil)
	var listed []storage.InventoryTask
	decodeBody(t, rec, &listed)
	if len(listed) != 1 || listed[0].Counter == nil || listed[0].Counter.TotalPages != 1520 {
		t.Fatalf("unexpected tasks: %s", rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, fmt.Sprintf("/api/printers/%d", p.ID), nil)
	var detail struct {
		storage.Printer
		LatestCounter *storage.PageCounter `json:"latest_counter"`
	}
	decodeBody(t, rec, &detail)
	if detail.LatestCounter == nil || detail.LatestCounter.TotalPages != 1520 {
		t.Errorf("latest counter missing: %s", rec.Body.String())
	}
	if detail.LastMatchRule != "SN_MAC" {
		t.Errorf("last match rule = %q", detail.LastMatchRule)
	}
}

func TestRunInventoryEndpointConflicts(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil)
	h := a.routes()
	p := createTestPrinter(t, a, "10.0.0.6", "VNB3K12345", "")

	if !a.svc.Guard().TryAcquire(p.ID) {
		t.Fatal("guard unexpectedly held")
	}
	defer a.svc.Guard().Release(p.ID)

	rec := doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/printers/%d/inventory", p.ID), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["status"] != string(poller.AlreadyRunning) {
		t.Errorf("unexpected body: %v", body)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/printers/999/inventory", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing printer status = %d, want 404", rec.Code)
	}
}

func TestRunAllEndpoint(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, reportPoller(t, testReport("VNB3K12345", "", 10)))
	h := a.routes()
	p1 := createTestPrinter(t, a, "10.0.0.7", "VNB3K12345", "")
	p2 := createTestPrinter(t, a, "10.0.0.8", "OTHER99999", "")

	rec := doRequest(t, h, http.MethodPost, "/api/printers/inventory", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}

	if tasks := waitForTasks(t, a, p1.ID, 1); tasks[0].Status != "SUCCESS" {
		t.Errorf("printer 1 task = %+v", tasks[0])
	}
	if tasks := waitForTasks(t, a, p2.ID, 1); tasks[0].Status != "VALIDATION_ERROR" {
		t.Errorf("printer 2 task = %+v", tasks[0])
	}
}

func multipartUpload(t *testing.T, filename, content, ip string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	if ip != "" {
		mw.WriteField("ip", ip)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImportEndpoint(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil)
	h := a.routes()
	p := createTestPrinter(t, a, "10.0.0.9", "VNB3K12345", "00:1b:a9:aa:bb:cc")
	good := testReport("VNB3K12345", "00:1b:a9:aa:bb:cc", 300)

	t.Run("ip from filename", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartUpload(t, "10.0.0.9.xml", good, ""))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		var res runResponse
		decodeBody(t, rec, &res)
		if res.PrinterID != p.ID || res.Status != "SUCCESS" || res.MatchRule != "SN_MAC" {
			t.Errorf("unexpected response: %+v", res)
		}
		if res.Task == nil || res.Task.Counter == nil || res.Task.Counter.TotalPages != 300 {
			t.Errorf("task not returned: %+v", res.Task)
		}
	})

	t.Run("explicit ip with malformed report", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartUpload(t, "report.xml", "<REQUEST><CONTENT>", "10.0.0.9"))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		var res runResponse
		decodeBody(t, rec, &res)
		if res.Status != "FAILED" || res.Kind != "parse_failure" {
			t.Errorf("unexpected response: %+v", res)
		}
	})

	t.Run("unresolved printer", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartUpload(t, "report.xml", testReport("X", "11:22:33:44:55:66", 1), ""))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("missing file", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartUpload(t, "", "", "10.0.0.9"))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

// discoveringPoller supports discovery-only polls.
type discoveringPoller struct {
	dir  string
	body string
}

func (d *discoveringPoller) Poll(ctx context.Context, tg poller.Target) (string, error) {
	return d.Discover(ctx, tg)
}

func (d *discoveringPoller) Discover(ctx context.Context, tg poller.Target) (string, error) {
	path := filepath.Join(d.dir, tg.IP+".xml")
	return path, os.WriteFile(path, []byte(d.body), 0644)
}

func TestDiscoverEndpoint(t *testing.T) {
	t.Parallel()

	body := `<REQUEST><CONTENT><DEVICE><INFO>
		<SERIAL>VNB3K12345</SERIAL><MAC>00-1b-a9-aa-bb-cc</MAC>
		<MANUFACTURER>Hewlett-Packard</MANUFACTURER>
		<COMMENTS>HP ETHERNET MULTI-ENVIRONMENT,PID:HP LaserJet M1522nf MFP,FW:20100521</COMMENTS>
	</INFO></DEVICE></CONTENT></REQUEST>`
	a := newTestApp(t, &discoveringPoller{dir: t.TempDir(), body: body})
	h := a.routes()

	rec := doRequest(t, h, http.MethodPost, "/api/printers/discover", map[string]string{"ip_address": "10.0.0.20"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var found poller.Discovery
	decodeBody(t, rec, &found)
	if found.Serial != "VNB3K12345" || found.MAC != "00:1B:A9:AA:BB:CC" || found.IP != "10.0.0.20" {
		t.Errorf("unexpected discovery: %+v", found)
	}
	if found.Model != "HP LaserJet M1522nf MFP" || found.Manufacturer != "Hewlett-Packard" {
		t.Errorf("unexpected model/manufacturer: %+v", found)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/printers/discover", map[string]string{"ip_address": "nope"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid ip status = %d, want 400", rec.Code)
	}

	plain := newTestApp(t, reportPoller(t, testReport("VNB3K12345", "", 1)))
	rec = doRequest(t, plain.routes(), http.MethodPost, "/api/printers/discover", map[string]string{"ip_address": "10.0.0.20"})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("unsupported discovery status = %d, want 502", rec.Code)
	}
}

func TestListPrintersMatchRuleFilter(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil)
	h := a.routes()
	ctx := context.Background()

	exact := createTestPrinter(t, a, "10.0.0.5", "VNB3K12345", "00:1b:a9:aa:bb:cc")
	replaced := createTestPrinter(t, a, "10.0.0.6", "ABCDE99999", "00:1b:a9:00:00:06")

	for _, run := range []struct {
		p      *storage.Printer
		serial string
	}{
		{exact, exact.SerialNumber},
		{replaced, "NEWSN00001"},
	} {
		out := inventory.ProcessBytes([]byte(testReport(run.serial, run.p.MACAddress, 10)), run.p.Expected(), run.p.MACAddress)
		if _, err := a.store.RecordOutcome(ctx, run.p.ID, out, time.Now()); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	rec := doRequest(t, h, http.MethodGet, "/api/printers?match_rule=mac_only", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var printers []storage.Printer
	decodeBody(t, rec, &printers)
	if len(printers) != 1 || printers[0].ID != replaced.ID || printers[0].LastMatchRule != "MAC_ONLY" {
		t.Fatalf("unexpected MAC_ONLY printers: %+v", printers)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/printers", nil)
	printers = nil
	decodeBody(t, rec, &printers)
	if len(printers) != 2 {
		t.Errorf("unfiltered list has %d printers, want 2", len(printers))
	}

	rec = doRequest(t, h, http.MethodGet, "/api/printers?match_rule=BOGUS", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid rule status = %d, want 400", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil)
	createTestPrinter(t, a, "10.0.0.30", "VNB3K12345", "")
	createTestPrinter(t, a, "10.0.0.31", "VNB3K12346", "")

	rec := doRequest(t, a.routes(), http.MethodGet, "/api/stats", nil)
	var stats storage.Stats
	decodeBody(t, rec, &stats)
	if stats.Printers != 2 || stats.Tasks != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestStatusForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("printer 3: %w", storage.ErrNotFound), http.StatusNotFound},
		{poller.ErrPrinterUnresolved, http.StatusNotFound},
		{storage.ErrDuplicate, http.StatusConflict},
		{fmt.Errorf("printer 3: %w", poller.ErrAlreadyRunning), http.StatusConflict},
		{poller.ErrAmbiguousMAC, http.StatusConflict},
		{poller.ErrQueueFull, http.StatusServiceUnavailable},
		{poller.ErrStopped, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: eof", rawdoc.ErrParse), http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestNewAppUsesConfiguredPaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "inventory.db")
	cfg.Poller.OutputDir = filepath.Join(dir, "out")

	a, err := newApp(cfg, false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	if _, err := os.Stat(cfg.Database.Path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	if !strings.HasSuffix(cfg.Database.Path, "inventory.db") {
		t.Errorf("database path rewritten: %s", cfg.Database.Path)
	}

	// Without a GLPI agent a poll is recorded as a poll failure.
	p := &storage.Printer{IPAddress: "10.0.0.40", SerialNumber: "VNB3K12345"}
	if err := a.store.CreatePrinter(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	res, err := a.svc.RunInventory(context.Background(), p.ID, "")
	if err != nil {
		t.Fatalf("RunInventory: %v", err)
	}
	if res.Outcome.Status() != "FAILED" {
		t.Errorf("status = %s, want FAILED", res.Outcome.Status())
	}
}
