package counters

import (
	"strings"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/rawdoc"
)

// Supplies holds consumable levels as the agent reports them (a percentage
// or a state word such as OK / WARNING). Empty means not reported.
type Supplies struct {
	DrumBlack    string `json:"drum_black"`
	DrumCyan     string `json:"drum_cyan"`
	DrumMagenta  string `json:"drum_magenta"`
	DrumYellow   string `json:"drum_yellow"`
	TonerBlack   string `json:"toner_black"`
	TonerCyan    string `json:"toner_cyan"`
	TonerMagenta string `json:"toner_magenta"`
	TonerYellow  string `json:"toner_yellow"`
	FuserKit     string `json:"fuser_kit"`
	TransferKit  string `json:"transfer_kit"`
	WasteToner   string `json:"waste_toner"`
}

// ExtractSupplies reads supply tags from CONTENT/DEVICE/CARTRIDGES, falling
// back to the same tag directly under CONTENT/DEVICE.
func ExtractSupplies(doc *rawdoc.Document) Supplies {
	device, ok := doc.Lookup("CONTENT", "DEVICE")
	if !ok {
		return Supplies{}
	}
	cartridges, _ := device.Get("CARTRIDGES")

	level := func(tags ...string) string {
		for _, tag := range tags {
			for _, src := range []rawdoc.Value{cartridges, device} {
				if v, ok := src.Get(tag); ok {
					if s := strings.TrimSpace(v.Text()); s != "" {
						return s
					}
				}
			}
		}
		return ""
	}

	return Supplies{
		DrumBlack:    level("DRUMBLACK", "DEVELOPERBLACK"),
		DrumCyan:     level("DRUMCYAN"),
		DrumMagenta:  level("DRUMMAGENTA"),
		DrumYellow:   level("DRUMYELLOW"),
		TonerBlack:   level("TONERBLACK"),
		TonerCyan:    level("TONERCYAN"),
		TonerMagenta: level("TONERMAGENTA"),
		TonerYellow:  level("TONERYELLOW"),
		FuserKit:     level("FUSERKIT"),
		TransferKit:  level("TRANSFERKIT"),
		WasteToner:   level("WASTETONER"),
	}
}

// IsZero reports whether no supply was reported.
func (s Supplies) IsZero() bool {
	return s == Supplies{}
}
