package inventory

import (
	"fmt"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/counters"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/identity"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/rawdoc"
)

// Process validates the device identity in doc against expected and then
// normalizes its page counters. knownMAC is the MAC currently stored on
// the device record, if any. Process has no side effects and is safe for
// concurrent use.
func Process(doc *rawdoc.Document, expected identity.ExpectedIdentity, knownMAC string) Outcome {
	if doc.Empty() {
		return ParseFailed(fmt.Errorf("%w: empty document", rawdoc.ErrParse))
	}

	found := identity.Identify(doc)
	res, err := identity.Validate(found, expected, knownMAC)
	if err != nil {
		out := failed(KindValidationError, err)
		out.Rule = res.Rule
		out.Identity = res.Identity
		return out
	}

	snap, branch, err := counters.Extract(doc)
	if err != nil {
		out := failed(KindEmptyCounters, err)
		out.Rule = res.Rule
		out.Identity = res.Identity
		out.Reflashed = res.Reflashed
		return out
	}

	out := Outcome{
		Kind:      KindSuccess,
		Rule:      res.Rule,
		Identity:  res.Identity,
		Reflashed: res.Reflashed,
		Counters:  snap,
		Branch:    branch,
		Supplies:  counters.ExtractSupplies(doc),
	}
	if identity.NormalizeMAC(knownMAC) == "" && identity.NormalizeMAC(expected.MAC) == "" && res.Identity.MAC != "" {
		out.DiscoveredMAC = res.Identity.MAC
	}
	return out
}

// ProcessFile parses the report at path and runs Process on it.
func ProcessFile(path string, expected identity.ExpectedIdentity, knownMAC string) Outcome {
	doc, err := rawdoc.ParseFile(path)
	if err != nil {
		return ParseFailed(err)
	}
	return Process(doc, expected, knownMAC)
}

// ProcessBytes parses raw report bytes and runs Process on them.
func ProcessBytes(data []byte, expected identity.ExpectedIdentity, knownMAC string) Outcome {
	doc, err := rawdoc.ParseBytes(data)
	if err != nil {
		return ParseFailed(err)
	}
	return Process(doc, expected, knownMAC)
}
