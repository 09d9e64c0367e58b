package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/identity"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/rawdoc"
	"github.com/hlebuschek/printer-inventory-django-sub001/server/poller"
	"github.com/hlebuschek/printer-inventory-django-sub001/server/storage"
)

const (
	defaultTaskLimit = 50
	maxTaskLimit     = 500
)

// routes builds the HTTP handler for the API and the websocket endpoint.
func (a *app) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)
	mux.HandleFunc("GET /api/stats", a.handleStats)
	mux.HandleFunc("GET /api/logs", a.handleLogs)

	mux.HandleFunc("GET /api/printers", a.handleListPrinters)
	mux.HandleFunc("POST /api/printers", a.handleCreatePrinter)
	mux.HandleFunc("POST /api/printers/discover", a.handleDiscover)
	mux.HandleFunc("POST /api/printers/inventory", a.handleRunAll)
	mux.HandleFunc("GET /api/printers/{id}", a.handleGetPrinter)
	mux.HandleFunc("POST /api/printers/{id}/inventory", a.handleRunInventory)
	mux.HandleFunc("GET /api/printers/{id}/tasks", a.handleListTasks)

	mux.HandleFunc("POST /api/import", a.handleImport)

	mux.HandleFunc("GET /ws/inventory", a.handleInventoryWebSocket)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logDebug("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForError maps service and storage sentinels to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, poller.ErrPrinterUnresolved):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicate),
		errors.Is(err, poller.ErrAlreadyRunning),
		errors.Is(err, poller.ErrAmbiguousMAC):
		return http.StatusConflict
	case errors.Is(err, poller.ErrQueueFull), errors.Is(err, poller.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, rawdoc.ErrParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func printerID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"ws_clients": a.hub.ClientCount(),
		"in_flight":  a.svc.Guard().Len(),
	})
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	})
}

func (a *app) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.store.Stats(r.Context())
	if err != nil {
		logError("Failed to read stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleListPrinters lists printers. ?match_rule=MAC_ONLY narrows the list
// to printers whose last successful poll matched with that rule.
func (a *app) handleListPrinters(w http.ResponseWriter, r *http.Request) {
	var (
		printers []*storage.Printer
		err      error
	)
	if rule := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("match_rule"))); rule != "" {
		if !identity.MatchRule(rule).Valid() {
			writeError(w, http.StatusBadRequest, "invalid match_rule")
			return
		}
		printers, err = a.store.ListPrintersByMatchRule(r.Context(), rule)
	} else {
		printers, err = a.store.ListPrinters(r.Context())
	}
	if err != nil {
		logError("Failed to list printers", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list printers")
		return
	}
	if printers == nil {
		printers = []*storage.Printer{}
	}
	writeJSON(w, http.StatusOK, printers)
}

type createPrinterRequest struct {
	IPAddress     string `json:"ip_address"`
	SerialNumber  string `json:"serial_number"`
	MACAddress    string `json:"mac_address"`
	Model         string `json:"model"`
	SNMPCommunity string `json:"snmp_community"`
}

func (a *app) handleCreatePrinter(w http.ResponseWriter, r *http.Request) {
	var req createPrinterRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if net.ParseIP(strings.TrimSpace(req.IPAddress)) == nil {
		writeError(w, http.StatusBadRequest, "ip_address must be a valid IP address")
		return
	}

	p := &storage.Printer{
		IPAddress:     req.IPAddress,
		SerialNumber:  req.SerialNumber,
		MACAddress:    req.MACAddress,
		Model:         req.Model,
		SNMPCommunity: req.SNMPCommunity,
	}
	if err := a.store.CreatePrinter(r.Context(), p); err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			logError("Failed to create printer", "ip", req.IPAddress, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	logInfo("Printer created", "printer_id", p.ID, "ip", p.IPAddress)
	writeJSON(w, http.StatusCreated, p)
}

type printerDetail struct {
	*storage.Printer
	LatestCounter *storage.PageCounter `json:"latest_counter,omitempty"`
}

func (a *app) handleGetPrinter(w http.ResponseWriter, r *http.Request) {
	id, ok := printerID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid printer id")
		return
	}
	p, err := a.store.GetPrinter(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	detail := printerDetail{Printer: p}
	counter, err := a.store.LatestCounter(r.Context(), id)
	switch {
	case err == nil:
		detail.LatestCounter = counter
	case !errors.Is(err, storage.ErrNotFound):
		logWarn("Failed to load latest counter", "printer_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *app) handleRunInventory(w http.ResponseWriter, r *http.Request) {
	id, ok := printerID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid printer id")
		return
	}
	if _, err := a.store.GetPrinter(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	status, err := a.svc.Submit(id, "")
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	if status == poller.AlreadyRunning {
		writeJSON(w, http.StatusConflict, map[string]interface{}{"printer_id": id, "status": status})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"printer_id": id, "status": status})
}

func (a *app) handleRunAll(w http.ResponseWriter, r *http.Request) {
	go func() {
		if _, err := a.svc.RunAll(a.ctx); err != nil {
			logWarn("Inventory pass interrupted", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (a *app) handleListTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := printerID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid printer id")
		return
	}
	limit := defaultTaskLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTaskLimit)
	}
	if _, err := a.store.GetPrinter(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	tasks, err := a.store.ListTasks(r.Context(), id, limit)
	if err != nil {
		logError("Failed to list tasks", "printer_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []*storage.InventoryTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// runResponse is the JSON form of a completed run.
type runResponse struct {
	PrinterID int64                  `json:"printer_id"`
	RunID     string                 `json:"run_id"`
	Status    string                 `json:"status"`
	Kind      string                 `json:"kind"`
	MatchRule string                 `json:"match_rule,omitempty"`
	Reflashed bool                   `json:"reflashed,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Regressed []string               `json:"regressed_fields,omitempty"`
	Task      *storage.InventoryTask `json:"task,omitempty"`
}

func newRunResponse(res *poller.Result) runResponse {
	out := res.Outcome
	return runResponse{
		PrinterID: res.PrinterID,
		RunID:     res.RunID,
		Status:    string(out.Status()),
		Kind:      string(out.Kind),
		MatchRule: string(out.Rule),
		Reflashed: out.Reflashed,
		Message:   out.Reason,
		Regressed: res.Regressed,
		Task:      res.Task,
	}
}

// handleImport accepts a multipart upload (field "file", optional "ip") and
// processes it synchronously.
func (a *app) handleImport(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(a.cfg.Server.MaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	// The original name is kept so an IP embedded in it can identify the printer.
	dir, err := os.MkdirTemp("", "inventory-import-")
	if err != nil {
		logError("Failed to create import directory", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer os.RemoveAll(dir)

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload.xml"
	}
	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		logError("Failed to store upload", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if err := dst.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	res, err := a.svc.Import(r.Context(), path, r.FormValue("ip"))
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			logError("Import failed", "file", name, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(res))
}

type discoverRequest struct {
	IPAddress     string `json:"ip_address"`
	SNMPCommunity string `json:"snmp_community"`
}

func (a *app) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ip := strings.TrimSpace(req.IPAddress)
	if net.ParseIP(ip) == nil {
		writeError(w, http.StatusBadRequest, "ip_address must be a valid IP address")
		return
	}
	found, err := a.svc.Discover(r.Context(), ip, req.SNMPCommunity)
	if err != nil {
		logWarn("Discovery failed", "ip", ip, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, found)
}
