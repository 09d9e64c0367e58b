package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/hlebuschek/printer-inventory-django-sub001/common/logger"
)

const maxLogTail = 1000

// handleLogs returns the in-memory log buffer as plain text, oldest first.
// ?level=warn keeps entries at that level or more severe, ?tail=N keeps the
// last N entries.
func (a *app) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "logging is not initialized")
		return
	}

	var entries []logger.LogEntry
	if levelStr := strings.TrimSpace(r.URL.Query().Get("level")); levelStr != "" {
		level := logger.ParseLevel(levelStr)
		if !strings.EqualFold(logger.LevelToString(level), levelStr) && !strings.EqualFold(levelStr, "warning") {
			writeError(w, http.StatusBadRequest, "invalid level")
			return
		}
		entries = a.logs.GetBufferFiltered(level)
	} else {
		entries = a.logs.GetBuffer()
	}

	if tailStr := r.URL.Query().Get("tail"); tailStr != "" {
		tail, err := strconv.Atoi(tailStr)
		if err != nil || tail <= 0 || tail > maxLogTail {
			writeError(w, http.StatusBadRequest, "invalid tail")
			return
		}
		if len(entries) > tail {
			entries = entries[len(entries)-tail:]
		}
	}

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(logger.FormatEntry(e))
		b.WriteByte('\n')
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(b.String()))
}
