package identity

import (
	"regexp"
	"strings"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/rawdoc"
)

// HP devices often leave MODEL empty and report "PID:<model>" in COMMENTS.
var pidPattern = regexp.MustCompile(`PID:\s*([^,\n]+)`)

// ExtractModel returns the first non-empty MODEL leaf in document order,
// else the PID named in a COMMENTS leaf, else "".
func ExtractModel(doc *rawdoc.Document) string {
	if model := firstLeaf(doc, "MODEL"); model != "" {
		return model
	}
	model := ""
	doc.Walk(func(path []string, text string) {
		if model != "" || path[len(path)-1] != "COMMENTS" {
			return
		}
		if m := pidPattern.FindStringSubmatch(text); m != nil {
			model = strings.TrimSpace(m[1])
		}
	})
	return model
}

// ExtractManufacturer returns the first non-empty MANUFACTURER leaf.
func ExtractManufacturer(doc *rawdoc.Document) string {
	return firstLeaf(doc, "MANUFACTURER")
}

func firstLeaf(doc *rawdoc.Document, tag string) string {
	found := ""
	doc.Walk(func(path []string, text string) {
		if found != "" || path[len(path)-1] != tag {
			return
		}
		found = strings.TrimSpace(text)
	})
	return found
}
