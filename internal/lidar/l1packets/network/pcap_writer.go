package network

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PCAPWriter wraps sensor payloads in Ethernet/IPv4/UDP headers and writes
// them as a classic pcap stream, the way a capture on the sensor's LAN
// would record them.
type PCAPWriter struct {
	w       *pcapgo.Writer
	eth     layers.Ethernet
	ip      layers.IPv4
	srcPort layers.UDPPort
	dstPort layers.UDPPort
	buf     gopacket.SerializeBuffer
}

// PCAPWriterConfig addresses the synthetic datagrams.
type PCAPWriterConfig struct {
	SrcIP   net.IP // defaults to 192.168.1.201, the Velodyne factory address
	DstIP   net.IP // defaults to 255.255.255.255
	SrcPort int    // defaults to DstPort
	DstPort int
}

// NewPCAPWriter writes the pcap file header to w.
func NewPCAPWriter(w io.Writer, cfg PCAPWriterConfig) (*PCAPWriter, error) {
	if cfg.DstPort <= 0 || cfg.DstPort > 65535 {
		return nil, fmt.Errorf("invalid destination port %d", cfg.DstPort)
	}
	if cfg.SrcIP == nil {
		cfg.SrcIP = net.IPv4(192, 168, 1, 201)
	}
	if cfg.DstIP == nil {
		cfg.DstIP = net.IPv4bcast
	}
	if cfg.SrcPort == 0 {
		cfg.SrcPort = cfg.DstPort
	}

	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &PCAPWriter{
		w: pw,
		eth: layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x60, 0x76, 0x88, 0x00, 0x00, 0x01},
			DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			EthernetType: layers.EthernetTypeIPv4,
		},
		ip: layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    cfg.SrcIP.To4(),
			DstIP:    cfg.DstIP.To4(),
		},
		srcPort: layers.UDPPort(cfg.SrcPort),
		dstPort: layers.UDPPort(cfg.DstPort),
		buf:     gopacket.NewSerializeBuffer(),
	}, nil
}

// WritePacket appends one datagram captured at ts.
func (p *PCAPWriter) WritePacket(payload []byte, ts time.Time) error {
	ip := p.ip
	udp := layers.UDP{SrcPort: p.srcPort, DstPort: p.dstPort}
	if err := udp.SetNetworkLayerForChecksum(&ip); err != nil {
		return err
	}
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(p.buf, opts, &p.eth, &ip, &udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("failed to serialise packet: %w", err)
	}
	data := p.buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
	return p.w.WritePacket(ci, data)
}
