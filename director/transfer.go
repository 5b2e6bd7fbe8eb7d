package director

import "regexp"

// transferMarkerRe matches the structured hand-off marker the underlying
// multi-agent tooling sometimes renders as plain text instead of performing
// the hand-off, e.g. `transfer_to_agent(agent_name="Participant_2")`.
var transferMarkerRe = regexp.MustCompile(`transfer_to_agent\(agent_name=["']([^"]+)["']\)`)

// ScanTransferMarker reports whether a text fragment contains a hand-off
// marker and returns the target agent name. Pure function so the correction
// protocol can be tested against literal fixture strings.
func ScanTransferMarker(fragment string) (string, bool) {
	m := transferMarkerRe.FindStringSubmatch(fragment)
	if m == nil {
		return "", false
	}
	return m[1], true
}
