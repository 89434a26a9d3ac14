// Package filter evaluates the operator's display filter against buffer
// snapshots. Everything here is pure: it is safe to call on every
// refresh tick with no synchronization beyond holding a snapshot.
package filter

import (
	"strings"

	"packetscope/internal/models"
)

// Spec holds the three independent substring predicates an operator can
// set. An empty field matches every record; active fields are ANDed.
type Spec struct {
	Protocol    string
	Source      string
	Destination string
}

// IsEmpty reports whether no predicate is active.
func (s Spec) IsEmpty() bool {
	return s.Protocol == "" && s.Source == "" && s.Destination == ""
}

// Match reports whether r satisfies every active predicate. The
// protocol test is case-insensitive; address tests are exact substring
// so partial prefixes like "192.168" work.
func (s Spec) Match(r models.PacketRecord) bool {
	if s.Protocol != "" &&
		!strings.Contains(strings.ToLower(r.Protocol), strings.ToLower(s.Protocol)) {
		return false
	}
	if s.Source != "" && !strings.Contains(r.Source, s.Source) {
		return false
	}
	if s.Destination != "" && !strings.Contains(r.Destination, s.Destination) {
		return false
	}
	return true
}

// Apply returns the records matching spec, preserving their relative
// order. The input is never mutated; with an empty spec the input slice
// is returned as-is.
func Apply(records []models.PacketRecord, spec Spec) []models.PacketRecord {
	if spec.IsEmpty() {
		return records
	}
	out := make([]models.PacketRecord, 0, len(records))
	for _, r := range records {
		if spec.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
