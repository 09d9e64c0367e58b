package identity

import (
	"strings"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/rawdoc"
)

// NormalizeMAC returns raw in canonical XX:XX:XX:XX:XX:XX form. Separators
// and case are ignored; anything that is not exactly 12 hex digits yields "".
func NormalizeMAC(raw string) string {
	hexes := make([]byte, 0, 12)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'F':
			hexes = append(hexes, c)
		case c >= 'a' && c <= 'f':
			hexes = append(hexes, c-'a'+'A')
		}
	}
	if len(hexes) != 12 {
		return ""
	}

	var b strings.Builder
	b.Grow(17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.Write(hexes[i : i+2])
	}
	return b.String()
}

// MACEqual reports whether a and b are the same valid MAC address.
func MACEqual(a, b string) bool {
	na, nb := NormalizeMAC(a), NormalizeMAC(b)
	return na != "" && na == nb
}

var wiredPortHints = []string{"ethernet", "eth", "lan", "gigabit", "fast"}

// ExtractMAC returns the device base MAC from CONTENT/DEVICE. A port whose
// IFDESCR (or IFNAME) looks wired is preferred, then INFO/MAC, then the
// first port carrying a valid MAC. Returns "" when none is found.
func ExtractMAC(doc *rawdoc.Document) string {
	device, ok := doc.Lookup("CONTENT", "DEVICE")
	if !ok {
		return ""
	}

	var ports []rawdoc.Value
	if v, ok := device.Get("PORTS"); ok {
		if p, ok := v.Get("PORT"); ok {
			ports = p.Items()
		}
	}

	for _, port := range ports {
		desc := portText(port, "IFDESCR")
		if desc == "" {
			desc = portText(port, "IFNAME")
		}
		desc = strings.ToLower(desc)
		for _, hint := range wiredPortHints {
			if strings.Contains(desc, hint) {
				if mac := NormalizeMAC(portText(port, "MAC")); mac != "" {
					return mac
				}
				break
			}
		}
	}

	if info, ok := device.Get("INFO"); ok {
		if v, ok := info.Get("MAC"); ok {
			if mac := NormalizeMAC(v.Text()); mac != "" {
				return mac
			}
		}
	}

	for _, port := range ports {
		if mac := NormalizeMAC(portText(port, "MAC")); mac != "" {
			return mac
		}
	}
	return ""
}

func portText(port rawdoc.Value, key string) string {
	v, ok := port.Get(key)
	if !ok {
		return ""
	}
	return v.Text()
}
