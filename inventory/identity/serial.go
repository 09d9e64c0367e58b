package identity

import (
	"strings"
	"unicode/utf8"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/rawdoc"
)

// SerialOID is prtGeneralSerialNumber from the Printer MIB.
const SerialOID = "1.3.6.1.2.1.43.5.1.1.17.1"

// MinSerialLength is the shortest value accepted as a serial number.
const MinSerialLength = 5

var serialPlaceholders = map[string]struct{}{
	"none": {},
	"n/a":  {},
}

// SerialCandidates returns every plausible serial number in document order.
// A leaf qualifies when any key on its path contains "serial"
// (case-insensitive) or the serial OID, and its trimmed value is at least
// MinSerialLength runes and not a placeholder.
func SerialCandidates(doc *rawdoc.Document) []string {
	var out []string
	doc.Walk(func(path []string, text string) {
		if !isSerialPath(path) {
			return
		}
		value := strings.TrimSpace(text)
		if utf8.RuneCountInString(value) < MinSerialLength {
			return
		}
		if _, ok := serialPlaceholders[strings.ToLower(value)]; ok {
			return
		}
		out = append(out, value)
	})
	return out
}

func isSerialPath(path []string) bool {
	for _, key := range path {
		if strings.Contains(strings.ToLower(key), "serial") || strings.Contains(key, SerialOID) {
			return true
		}
	}
	return false
}

// ExtractSerial returns the longest serial candidate. Ties keep the first
// in document order. Returns "" when there is none.
func ExtractSerial(doc *rawdoc.Document) string {
	best := ""
	bestLen := 0
	for _, c := range SerialCandidates(doc) {
		if n := utf8.RuneCountInString(c); n > bestLen {
			best, bestLen = c, n
		}
	}
	return best
}
