package identity

import (
	"testing"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/rawdoc"
)

func TestNormalizeMAC(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"00:1b:a9:aa:bb:cc":    "00:1B:A9:AA:BB:CC",
		"00-1B-A9-AA-BB-CC":    "00:1B:A9:AA:BB:CC",
		"001ba9aabbcc":         "00:1B:A9:AA:BB:CC",
		"001b.a9aa.bbcc":       "00:1B:A9:AA:BB:CC",
		" 00 1b a9 aa bb cc":   "00:1B:A9:AA:BB:CC",
		"00:1b:a9:aa:bb":       "",
		"00:1b:a9:aa:bb:cc:dd": "",
		"":                     "",
		"not a mac":            "",
	}
	for in, want := range tests {
		if got := NormalizeMAC(in); got != want {
			t.Errorf("NormalizeMAC(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMACEqual(t *testing.T) {
	t.Parallel()

	if !MACEqual("00:1b:a9:aa:bb:cc", "001BA9AABBCC") {
		t.Error("expected equal MACs across formats")
	}
	if MACEqual("", "") {
		t.Error("two empty MACs must not compare equal")
	}
	if MACEqual("00:1b:a9:aa:bb:cc", "00:1b:a9:aa:bb:cd") {
		t.Error("different MACs compared equal")
	}
}

func mustParse(t *testing.T, xml string) *rawdoc.Document {
	t.Helper()
	doc, err := rawdoc.ParseString(xml)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestExtractMAC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		xml  string
		want string
	}{
		{
			name: "prefers wired port",
			xml: `<R><CONTENT><DEVICE>
				<INFO><MAC>aa:aa:aa:aa:aa:aa</MAC></INFO>
				<PORTS>
					<PORT><IFDESCR>Loopback</IFDESCR><MAC>11:11:11:11:11:11</MAC></PORT>
					<PORT><IFDESCR>Gigabit Ethernet</IFDESCR><MAC>22:22:22:22:22:22</MAC></PORT>
				</PORTS></DEVICE></CONTENT></R>`,
			want: "22:22:22:22:22:22",
		},
		{
			name: "ifname used when ifdescr missing",
			xml: `<R><CONTENT><DEVICE><PORTS>
					<PORT><IFNAME>eth0</IFNAME><MAC>33-33-33-33-33-33</MAC></PORT>
				</PORTS></DEVICE></CONTENT></R>`,
			want: "33:33:33:33:33:33",
		},
		{
			name: "falls back to info mac",
			xml: `<R><CONTENT><DEVICE>
				<INFO><MAC>aa:bb:cc:dd:ee:ff</MAC></INFO>
				<PORTS><PORT><IFDESCR>usb</IFDESCR><MAC>11:11:11:11:11:11</MAC></PORT></PORTS>
				</DEVICE></CONTENT></R>`,
			want: "AA:BB:CC:DD:EE:FF",
		},
		{
			name: "falls back to first valid port mac",
			xml: `<R><CONTENT><DEVICE>
				<INFO><MAC>garbage</MAC></INFO>
				<PORTS>
					<PORT><IFDESCR>usb</IFDESCR><MAC></MAC></PORT>
					<PORT><IFDESCR>serial</IFDESCR><MAC>44:44:44:44:44:44</MAC></PORT>
				</PORTS></DEVICE></CONTENT></R>`,
			want: "44:44:44:44:44:44",
		},
		{
			name: "wired port with bad mac is skipped",
			xml: `<R><CONTENT><DEVICE>
				<INFO><MAC>55:55:55:55:55:55</MAC></INFO>
				<PORTS><PORT><IFDESCR>Ethernet</IFDESCR><MAC>zz</MAC></PORT></PORTS>
				</DEVICE></CONTENT></R>`,
			want: "55:55:55:55:55:55",
		},
		{
			name: "no device",
			xml:  `<R><CONTENT/></R>`,
			want: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractMAC(mustParse(t, tt.xml)); got != tt.want {
				t.Errorf("ExtractMAC() = %q, want %q", got, tt.want)
			}
		})
	}
}
