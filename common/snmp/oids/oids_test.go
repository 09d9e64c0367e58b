package oids

import (
	"strings"
	"testing"
)

func TestPreflightOIDsAreDottedDecimal(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for _, oid := range Preflight {
		if oid == "" || strings.HasPrefix(oid, ".") || strings.HasSuffix(oid, ".") {
			t.Errorf("malformed OID %q", oid)
		}
		for _, part := range strings.Split(oid, ".") {
			if part == "" || strings.Trim(part, "0123456789") != "" {
				t.Errorf("OID %q has non-numeric arc %q", oid, part)
			}
		}
		if seen[oid] {
			t.Errorf("duplicate OID %q", oid)
		}
		seen[oid] = true
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		".1.3.6.1.2.1.1.1.0":  SysDescr,
		"1.3.6.1.2.1.1.1.0":   SysDescr,
		" .1.3.6.1.2.1.1.5.0": SysName,
		"":                    "",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
