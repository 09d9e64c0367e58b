// Package oids holds the SNMP object identifiers read from printers.
package oids

import "strings"

// MIB-II system group (RFC 1213).
const (
	SysDescr    = "1.3.6.1.2.1.1.1.0"
	SysObjectID = "1.3.6.1.2.1.1.2.0"
	SysName     = "1.3.6.1.2.1.1.5.0"
)

// Printer MIB (RFC 3805), first marker / first general entry.
const (
	// PrtGeneralSerialNumber is prtGeneralSerialNumber.1.
	PrtGeneralSerialNumber = "1.3.6.1.2.1.43.5.1.1.17.1"
	// PrtMarkerLifeCount is prtMarkerLifeCount.1.1, the lifetime impression count.
	PrtMarkerLifeCount = "1.3.6.1.2.1.43.10.2.1.4.1.1"
)

// Preflight lists the values fetched before an agent run, in request order.
var Preflight = []string{SysDescr, SysObjectID, SysName, PrtGeneralSerialNumber, PrtMarkerLifeCount}

// Normalize strips the leading dot gosnmp puts on response names so they can
// be compared with the constants above.
func Normalize(oid string) string {
	return strings.TrimPrefix(strings.TrimSpace(oid), ".")
}
