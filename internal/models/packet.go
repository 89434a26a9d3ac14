package models

import "time"

// PacketRecord holds the decoded summary of a single captured packet.
// Records are immutable once produced; the retention buffer only ever
// copies or evicts them.
type PacketRecord struct {
	Timestamp   time.Time
	Length      int
	Protocol    string
	Source      string
	Destination string

	// Transport-layer fields. Zero values mean the field is not
	// present for this protocol (e.g. ports on ICMP).
	SrcPort uint16
	DstPort uint16
	Flags   string // TCP flag summary, empty for non-TCP
	Seq     uint32 // TCP sequence number

	TTL  uint8
	IPID uint16 // IPv4 identification field, 0 for IPv6
}

// CaptureStatus is a one-shot lifecycle notification emitted by the
// capture session on every status-changing transition.
type CaptureStatus struct {
	Success   bool
	Message   string
	Interface string // interface the status pertains to, may be empty
}

// Interface describes one capture-capable network device. It is a
// point-in-time snapshot; the catalog rebuilds it on every query.
type Interface struct {
	Name        string
	Description string
	MAC         string
	IPv4        []string
}
