package core

import (
	"fmt"
	"net/netip"
)

// MAC is an Ethernet hardware address.
type MAC [6]byte

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// Ethernet is the decoded Ethernet II header (RFC 894).
type Ethernet struct {
	Dst  MAC
	Src  MAC
	Type uint16 // EtherType of the payload
	Data []byte // Raw payload when the EtherType is not supported
}

func (e *Ethernet) Field(name string) (interface{}, bool) {
	switch name {
	case "dst":
		return e.Dst, true
	case "src":
		return e.Src, true
	case "type":
		return e.Type, true
	case "data":
		return e.Data, e.Data != nil
	}
	return nil, false
}

func (e *Ethernet) String() string {
	return fmt.Sprintf("%s -> %s, type: %#x", e.Src, e.Dst, e.Type)
}

// IP is the normalized network-layer view shared by IPv4 and IPv6 so the TCP
// decoder and the matcher treat both versions uniformly.
type IP struct {
	Version   uint8
	Src       netip.Addr
	Dst       netip.Addr
	Protocol  uint8
	TotalSize uint16 // v4: total length field; v6: fixed header + payload length
	TTL       uint8  // v6: hop limit

	// IPv4 only
	HeaderSize     int
	ID             uint16
	FragmentOffset uint16
	DF             uint8
	MF             uint8
	DSCP           uint8
	ECN            uint8
	Checksum       uint16
	Options        []byte

	Data []byte // Raw payload when the protocol is not supported
}

func (ip *IP) Field(name string) (interface{}, bool) {
	switch name {
	case "version":
		return ip.Version, true
	case "src":
		return ip.Src, true
	case "dst":
		return ip.Dst, true
	case "protocol":
		return ip.Protocol, true
	case "total_size":
		return ip.TotalSize, true
	case "TTL", "ttl":
		return ip.TTL, true
	case "id":
		return ip.ID, true
	case "fragment_offset":
		return ip.FragmentOffset, true
	case "checksum":
		return ip.Checksum, true
	case "data":
		return ip.Data, ip.Data != nil
	}
	return nil, false
}

func (ip *IP) String() string {
	return fmt.Sprintf("%s -> %s, protocol: %d, len: %d", ip.Src, ip.Dst, ip.Protocol, ip.TotalSize)
}

// TCPFlags holds the individual TCP flag bits as 0/1 values so match
// expressions can compare them with integers.
type TCPFlags struct {
	FIN, SYN, RST, PSH, ACK, URG, ECE, CWR, NS uint8
}

// NewTCPFlags splits the 9-bit raw flag field.
func NewTCPFlags(raw uint16) TCPFlags {
	bit := func(n uint) uint8 { return uint8((raw >> n) & 0x01) }
	return TCPFlags{
		FIN: bit(0), SYN: bit(1), RST: bit(2), PSH: bit(3), ACK: bit(4),
		URG: bit(5), ECE: bit(6), CWR: bit(7), NS: bit(8),
	}
}

func (f TCPFlags) Field(name string) (interface{}, bool) {
	switch name {
	case "FIN":
		return f.FIN, true
	case "SYN":
		return f.SYN, true
	case "RST":
		return f.RST, true
	case "PSH":
		return f.PSH, true
	case "ACK":
		return f.ACK, true
	case "URG":
		return f.URG, true
	case "ECE":
		return f.ECE, true
	case "CWR":
		return f.CWR, true
	case "NS":
		return f.NS, true
	}
	return nil, false
}

func (f TCPFlags) String() string {
	names := []struct {
		set  uint8
		name string
	}{
		{f.FIN, "FIN"}, {f.SYN, "SYN"}, {f.RST, "RST"}, {f.PSH, "PSH"},
		{f.ACK, "ACK"}, {f.URG, "URG"}, {f.ECE, "ECE"}, {f.CWR, "CWR"}, {f.NS, "NS"},
	}
	out := ""
	for _, n := range names {
		if n.set != 0 {
			if out != "" {
				out += ","
			}
			out += n.name
		}
	}
	return out
}

// TCP is the decoded TCP header plus the stream-relative sequence number
// assigned by the reassembly engine.
type TCP struct {
	SrcPort    uint16
	DstPort    uint16
	SeqNumber  uint32
	AckNumber  uint32
	HL         uint8 // Data offset in 32-bit words
	HeaderSize int
	FlagsRaw   uint16
	Flags      TCPFlags
	WindowSize uint16
	Checksum   uint16
	UrgentPtr  uint16
	Options    []byte

	Seq    int64  // Relative sequence number within the stream
	Length int    // Payload bytes in this segment
	Data   []byte // Raw payload when the RPC layer did not decode
}

func (t *TCP) Field(name string) (interface{}, bool) {
	switch name {
	case "src_port":
		return t.SrcPort, true
	case "dst_port":
		return t.DstPort, true
	case "seq_number":
		return t.SeqNumber, true
	case "ack_number":
		return t.AckNumber, true
	case "hl":
		return t.HL, true
	case "header_size":
		return t.HeaderSize, true
	case "flags_raw":
		return t.FlagsRaw, true
	case "flags":
		return t.Flags, true
	case "window_size":
		return t.WindowSize, true
	case "checksum":
		return t.Checksum, true
	case "urgent_ptr":
		return t.UrgentPtr, true
	case "seq":
		return t.Seq, true
	case "length":
		return t.Length, true
	case "data":
		return t.Data, t.Data != nil
	}
	return nil, false
}

func (t *TCP) String() string {
	return fmt.Sprintf("src port %d -> dst port %d, seq: %d, ack: %d, len: %d, flags: %s",
		t.SrcPort, t.DstPort, t.SeqNumber, t.AckNumber, t.Length, t.Flags)
}

// UDP is the decoded UDP header.
type UDP struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
	Data     []byte
}

func (u *UDP) Field(name string) (interface{}, bool) {
	switch name {
	case "src_port":
		return u.SrcPort, true
	case "dst_port":
		return u.DstPort, true
	case "length":
		return u.Length, true
	case "checksum":
		return u.Checksum, true
	case "data":
		return u.Data, u.Data != nil
	}
	return nil, false
}

func (u *UDP) String() string {
	return fmt.Sprintf("src port %d -> dst port %d, len: %d", u.SrcPort, u.DstPort, u.Length)
}
