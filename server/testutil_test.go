package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hlebuschek/printer-inventory-django-sub001/common/ws"
	"github.com/hlebuschek/printer-inventory-django-sub001/server/poller"
	"github.com/hlebuschek/printer-inventory-django-sub001/server/storage"
)

// newTestApp wires an app around an in-memory SQLite store. Background
// workers are started; the scheduler is not.
func newTestApp(t *testing.T, p poller.Poller) *app {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	cfg := DefaultConfig()
	svc := poller.NewService(store, p, poller.Config{Workers: 2, QueueSize: 4})
	hub := ws.NewHub()
	svc.SetPublisher(hub)
	ctx, cancel := context.WithCancel(context.Background())

	a := &app{
		cfg:       cfg,
		store:     store,
		svc:       svc,
		hub:       hub,
		scheduler: poller.NewScheduler(svc, 0, nil, storage.PrunePolicy{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	svc.Start()
	t.Cleanup(a.close)
	return a
}

func createTestPrinter(t *testing.T, a *app, ip, serial, mac string) *storage.Printer {
	t.Helper()
	p := &storage.Printer{IPAddress: ip, SerialNumber: serial, MACAddress: mac}
	if err := a.store.CreatePrinter(context.Background(), p); err != nil {
		t.Fatalf("CreatePrinter: %v", err)
	}
	return p
}

func testReport(serial, mac string, total int) string {
	return fmt.Sprintf(`<REQUEST><CONTENT><DEVICE>
		<INFO><SERIAL>%s</SERIAL><MAC>%s</MAC></INFO>
		<PAGECOUNTERS><TOTAL>%d</TOTAL><BW_A4>%d</BW_A4></PAGECOUNTERS>
	</DEVICE></CONTENT></REQUEST>`, serial, mac, total, total)
}

// reportPoller writes the same report for every target.
func reportPoller(t *testing.T, body string) poller.Poller {
	t.Helper()
	dir := t.TempDir()
	return poller.PollerFunc(func(ctx context.Context, tg poller.Target) (string, error) {
		path := filepath.Join(dir, tg.IP+".xml")
		return path, os.WriteFile(path, []byte(body), 0644)
	})
}
