// Package identity extracts serial number and MAC address from an inventory
// report and decides how they corroborate the device record.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/rawdoc"
)

// MatchRule records which identity fields confirmed a polled device.
type MatchRule string

const (
	RuleSNMAC   MatchRule = "SN_MAC"
	RuleMACOnly MatchRule = "MAC_ONLY"
	RuleSNOnly  MatchRule = "SN_ONLY"
	RuleNone    MatchRule = "NONE"
)

// Valid reports whether r is one of the known rules.
func (r MatchRule) Valid() bool {
	switch r {
	case RuleSNMAC, RuleMACOnly, RuleSNOnly, RuleNone:
		return true
	}
	return false
}

// ErrMismatch is wrapped by Validate when neither serial nor MAC match.
var ErrMismatch = errors.New("identity mismatch")

// DeviceIdentity is what the agent found on the wire.
type DeviceIdentity struct {
	Serial       string `json:"serial_number"`
	MAC          string `json:"mac_address,omitempty"`
	Model        string `json:"model,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

// ExpectedIdentity comes from the persisted device record.
type ExpectedIdentity struct {
	Serial string
	MAC    string
	IP     string
}

// Result is a successful validation.
type Result struct {
	Rule     MatchRule
	Identity DeviceIdentity
	// Reflashed is set for MAC_ONLY matches where both serials are known
	// and differ: same network interface, different reported serial.
	Reflashed bool
}

// Identify extracts the device identity from doc.
func Identify(doc *rawdoc.Document) DeviceIdentity {
	return DeviceIdentity{
		Serial:       ExtractSerial(doc),
		MAC:          ExtractMAC(doc),
		Model:        ExtractModel(doc),
		Manufacturer: ExtractManufacturer(doc),
	}
}

// Validate compares found against the expected identity. The stored MAC is
// knownMAC when set, otherwise expected.MAC. Serials compare exactly after
// trimming; MACs compare after normalization.
func Validate(found DeviceIdentity, expected ExpectedIdentity, knownMAC string) (Result, error) {
	storedMAC := NormalizeMAC(knownMAC)
	if storedMAC == "" {
		storedMAC = NormalizeMAC(expected.MAC)
	}
	foundSerial := strings.TrimSpace(found.Serial)
	expectedSerial := strings.TrimSpace(expected.Serial)
	foundMAC := NormalizeMAC(found.MAC)

	found.Serial, found.MAC = foundSerial, foundMAC
	serialMatch := foundSerial != "" && foundSerial == expectedSerial
	macMatch := foundMAC != "" && foundMAC == storedMAC

	switch {
	case serialMatch && macMatch:
		return Result{Rule: RuleSNMAC, Identity: found}, nil
	case macMatch:
		return Result{
			Rule:      RuleMACOnly,
			Identity:  found,
			Reflashed: foundSerial != "" && expectedSerial != "",
		}, nil
	case serialMatch:
		return Result{Rule: RuleSNOnly, Identity: found}, nil
	}

	return Result{Rule: RuleNone, Identity: found},
		fmt.Errorf("%w: %s", ErrMismatch, mismatchReason(foundSerial, expectedSerial, foundMAC, storedMAC))
}

func mismatchReason(foundSerial, expectedSerial, foundMAC, storedMAC string) string {
	var parts []string
	if expectedSerial != "" {
		parts = append(parts, fmt.Sprintf("serial %s != %s", orDash(foundSerial), expectedSerial))
	}
	if storedMAC != "" {
		parts = append(parts, fmt.Sprintf("MAC %s != %s", orDash(foundMAC), storedMAC))
	}
	if len(parts) == 0 {
		return "no serial number or MAC address to compare"
	}
	return strings.Join(parts, "; ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
