package poller

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/rawdoc"
)

var agentVersionRe = regexp.MustCompile(`\d+(?:\.\d+){0,2}`)

// AgentVersion returns the reporting agent's version string as found in
// VERSIONCLIENT (for example "GLPI-Agent_v1.7.3"), or "".
func AgentVersion(doc *rawdoc.Document) string {
	for _, path := range [][]string{{"VERSIONCLIENT"}, {"CONTENT", "VERSIONCLIENT"}} {
		if v := strings.TrimSpace(doc.LookupText(path...)); v != "" {
			return v
		}
	}
	return ""
}

// CheckAgentVersion compares the document's agent version with minimum. It
// returns the parsed version and whether it satisfies minimum. Documents that
// carry no parseable version are reported as satisfying.
func CheckAgentVersion(doc *rawdoc.Document, minimum string) (*semver.Version, bool, error) {
	minVer, err := semver.NewVersion(strings.TrimSpace(minimum))
	if err != nil {
		return nil, false, fmt.Errorf("invalid minimum agent version %q: %w", minimum, err)
	}
	raw := AgentVersion(doc)
	found := agentVersionRe.FindString(raw)
	if found == "" {
		return nil, true, nil
	}
	v, err := semver.NewVersion(found)
	if err != nil {
		return nil, true, nil
	}
	return v, !v.LessThan(minVer), nil
}
