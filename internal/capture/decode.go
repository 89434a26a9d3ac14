package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"packetscope/internal/models"
)

// decodePacket summarizes one captured frame into a PacketRecord. The
// bool result is false for frames without an IP layer (ARP, STP, ...),
// which the capture loop skips without terminating the session.
func decodePacket(pkt gopacket.Packet) (models.PacketRecord, bool) {
	rec := models.PacketRecord{Timestamp: pkt.Metadata().Timestamp}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Length = pkt.Metadata().Length
	if rec.Length == 0 {
		rec.Length = len(pkt.Data())
	}

	var nextProto string
	switch {
	case pkt.Layer(layers.LayerTypeIPv4) != nil:
		ip4 := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		rec.Source = ip4.SrcIP.String()
		rec.Destination = ip4.DstIP.String()
		rec.TTL = ip4.TTL
		rec.IPID = ip4.Id
		nextProto = fmt.Sprintf("Other(%d)", ip4.Protocol)
	case pkt.Layer(layers.LayerTypeIPv6) != nil:
		ip6 := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
		rec.Source = ip6.SrcIP.String()
		rec.Destination = ip6.DstIP.String()
		rec.TTL = ip6.HopLimit
		nextProto = fmt.Sprintf("Other(%d)", ip6.NextHeader)
	default:
		return models.PacketRecord{}, false
	}

	switch {
	case pkt.Layer(layers.LayerTypeTCP) != nil:
		tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
		rec.Protocol = "TCP"
		rec.SrcPort = uint16(tcp.SrcPort)
		rec.DstPort = uint16(tcp.DstPort)
		rec.Flags = tcpFlags(tcp)
		rec.Seq = tcp.Seq
	case pkt.Layer(layers.LayerTypeUDP) != nil:
		udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		rec.Protocol = "UDP"
		rec.SrcPort = uint16(udp.SrcPort)
		rec.DstPort = uint16(udp.DstPort)
	case pkt.Layer(layers.LayerTypeICMPv4) != nil:
		rec.Protocol = "ICMP"
	case pkt.Layer(layers.LayerTypeICMPv6) != nil:
		rec.Protocol = "ICMPv6"
	default:
		rec.Protocol = nextProto
	}

	return rec, true
}

func tcpFlags(tcp *layers.TCP) string {
	var set []string
	for _, f := range []struct {
		on   bool
		name string
	}{
		{tcp.SYN, "SYN"},
		{tcp.ACK, "ACK"},
		{tcp.FIN, "FIN"},
		{tcp.RST, "RST"},
		{tcp.PSH, "PSH"},
		{tcp.URG, "URG"},
	} {
		if f.on {
			set = append(set, f.name)
		}
	}
	return strings.Join(set, "|")
}
