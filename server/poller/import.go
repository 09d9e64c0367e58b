package poller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/identity"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/rawdoc"
	"github.com/hlebuschek/printer-inventory-django-sub001/server/storage"
)

var (
	// ErrPrinterUnresolved is returned when neither IP nor MAC identifies a printer.
	ErrPrinterUnresolved = errors.New("cannot determine printer; pass the IP or register the MAC")
	// ErrAmbiguousMAC is returned when several printers share the report's MAC.
	ErrAmbiguousMAC = errors.New("several printers share this MAC; pass the IP explicitly")
)

var ipInNameRe = regexp.MustCompile(`\d{1,3}(?:\.\d{1,3}){3}`)

// IPFromFilename returns the first IPv4 address in the file's base name.
func IPFromFilename(path string) string {
	for _, m := range ipInNameRe.FindAllString(filepath.Base(path), -1) {
		if ip := net.ParseIP(m); ip != nil && ip.To4() != nil {
			return m
		}
	}
	return ""
}

// ResolvePrinter finds the printer a report belongs to: by ip (or an IP in
// the file name), then by the report's MAC when exactly one printer has it.
func (s *Service) ResolvePrinter(ctx context.Context, xmlPath, ip string) (*storage.Printer, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = IPFromFilename(xmlPath)
	}
	if ip != "" {
		p, err := s.store.GetPrinterByIP(ctx, ip)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		logWarn("No printer with this IP, trying MAC", "ip", ip, "file", xmlPath)
	}

	doc, err := rawdoc.ParseFile(xmlPath)
	if err != nil {
		return nil, err
	}
	mac := identity.ExtractMAC(doc)
	if mac == "" {
		return nil, ErrPrinterUnresolved
	}
	printers, err := s.store.FindPrintersByMAC(ctx, mac)
	if err != nil {
		return nil, err
	}
	switch len(printers) {
	case 0:
		return nil, fmt.Errorf("%w (MAC %s)", ErrPrinterUnresolved, mac)
	case 1:
		logInfo("Printer resolved by MAC", "mac", mac, "ip", printers[0].IPAddress)
		return printers[0], nil
	default:
		return nil, fmt.Errorf("%w (MAC %s, %d printers)", ErrAmbiguousMAC, mac, len(printers))
	}
}

// Import processes an existing report file for the printer it belongs to.
func (s *Service) Import(ctx context.Context, xmlPath, ip string) (*Result, error) {
	if _, err := os.Stat(xmlPath); err != nil {
		return nil, fmt.Errorf("report %s: %w", xmlPath, err)
	}
	p, err := s.ResolvePrinter(ctx, xmlPath, ip)
	if err != nil {
		return nil, err
	}
	return s.RunInventory(ctx, p.ID, xmlPath)
}

// ImportResult is the result of importing one file.
type ImportResult struct {
	Path   string
	Result *Result
	Err    error
}

// ImportPath imports a single file, or every *.xml file in a directory in
// name order. ip applies to single files only.
func (s *Service) ImportPath(ctx context.Context, path, ip string) ([]ImportResult, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		res, err := s.Import(ctx, path, ip)
		return []ImportResult{{Path: path, Result: res, Err: err}}, nil
	}

	files, err := filepath.Glob(filepath.Join(path, "*.xml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	results := make([]ImportResult, 0, len(files))
	for _, f := range files {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, err := s.Import(ctx, f, "")
		if err != nil {
			logWarn("Import failed", "file", f, "error", err)
		}
		results = append(results, ImportResult{Path: f, Result: res, Err: err})
	}
	return results, nil
}
