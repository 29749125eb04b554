package pcap

import (
	"FlowSentry/internal/model"
	"log"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// Reader reads packets from a pcap file and converts them to flow records.
type Reader struct {
	handle *pcap.Handle
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filePath)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle}, nil
}

// Close closes the pcap handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// ReadFlows reads all packets from the pcap file and sends one flow
// record per decodable packet to the provided channel. Packets without an
// IP layer are skipped. The channel is not closed here; the caller owns it.
func (r *Reader) ReadFlows(out chan<- model.Flow) {
	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	for packet := range packetSource.Packets() {
		flow, ok := decode(packet)
		if !ok {
			continue
		}
		out <- flow
	}
}

func decode(packet gopacket.Packet) (model.Flow, bool) {
	var flow model.Flow

	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return flow, false
	}
	ip := ipLayer.(*layers.IPv4)
	flow.SAddr = ip.SrcIP.String()
	flow.DAddr = ip.DstIP.String()
	flow.TS = packet.Metadata().Timestamp

	switch {
	case packet.Layer(layers.LayerTypeTCP) != nil:
		tcp := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		flow.Proto = "tcp"
		flow.SPort = uint16(tcp.SrcPort)
		flow.DPort = uint16(tcp.DstPort)
		flow.State = tcpState(tcp)
	case packet.Layer(layers.LayerTypeUDP) != nil:
		udp := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		flow.Proto = "udp"
		flow.SPort = uint16(udp.SrcPort)
		flow.DPort = uint16(udp.DstPort)
	default:
		log.Printf("Skipping packet with unsupported transport from %s", flow.SAddr)
		return flow, false
	}
	return flow, true
}

func tcpState(tcp *layers.TCP) string {
	switch {
	case tcp.SYN && !tcp.ACK:
		return "S0"
	case tcp.SYN && tcp.ACK:
		return "SA"
	case tcp.FIN:
		return "FIN"
	case tcp.RST:
		return "RST"
	default:
		return "EST"
	}
}
