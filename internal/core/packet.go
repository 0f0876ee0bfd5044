package core

import (
	"fmt"
	"strings"
	"time"
)

// Record carries the per-frame metadata from the trace file record header.
// CapLen < OrigLen signals snaplen truncation; every downstream decoder
// tolerates it.
type Record struct {
	Index     int    // Frame number, 0-based, monotonic
	Seconds   uint32 // Timestamp seconds
	MicroSecs uint32 // Timestamp microseconds
	CapLen    uint32 // Bytes captured in the trace
	OrigLen   uint32 // Bytes on the wire
	Rel       time.Duration
	Data      []byte // Raw frame bytes when the link type is unsupported
}

// Time returns the absolute capture timestamp.
func (r *Record) Time() time.Time {
	return time.Unix(int64(r.Seconds), int64(r.MicroSecs)*1000)
}

// Truncated reports whether the frame was cut short by the snaplen.
func (r *Record) Truncated() bool {
	return r.CapLen < r.OrigLen
}

func (r *Record) String() string {
	return fmt.Sprintf("frame %d @ %.6f secs, %d bytes on wire, %d bytes captured",
		r.Index, r.Rel.Seconds(), r.OrigLen, r.CapLen)
}

// Pkt is the decoded view of a single frame. A layer pointer is non-nil only
// if that layer decoded successfully, so layer presence is a type-level
// question rather than attribute probing. Only one Pkt is materialized per
// Capture at a time.
type Pkt struct {
	Record   *Record
	Ethernet *Ethernet
	IP       *IP
	TCP      *TCP
	UDP      *UDP
	RPC      *RPC
	NFS      *Compound
	GSSData  *GSSData
	GSSCheck *GSSCheck

	// Set by the NFS matcher: the compound operation that satisfied the
	// last NFS leaf comparison, and its position in the ops array.
	NFSOp    *CompoundOp
	NFSOpIdx int
}

// Layer returns the decoded layer by its query-language name.
func (p *Pkt) Layer(name string) Fielder {
	switch strings.ToLower(name) {
	case "ethernet":
		if p.Ethernet != nil {
			return p.Ethernet
		}
	case "ip":
		if p.IP != nil {
			return p.IP
		}
	case "tcp":
		if p.TCP != nil {
			return p.TCP
		}
	case "udp":
		if p.UDP != nil {
			return p.UDP
		}
	case "rpc":
		if p.RPC != nil {
			return p.RPC
		}
	}
	return nil
}

func (p *Pkt) String() string {
	var b strings.Builder
	b.WriteString("Pkt(\n")
	if p.Record != nil {
		fmt.Fprintf(&b, "    RECORD:   %s\n", p.Record)
	}
	if p.Ethernet != nil {
		fmt.Fprintf(&b, "    ETHERNET: %s\n", p.Ethernet)
	}
	if p.IP != nil {
		fmt.Fprintf(&b, "    IP:       %s\n", p.IP)
	}
	if p.TCP != nil {
		fmt.Fprintf(&b, "    TCP:      %s\n", p.TCP)
	}
	if p.UDP != nil {
		fmt.Fprintf(&b, "    UDP:      %s\n", p.UDP)
	}
	if p.RPC != nil {
		fmt.Fprintf(&b, "    RPC:      %s\n", p.RPC)
	}
	if p.NFS != nil {
		fmt.Fprintf(&b, "    NFS:      %s\n", p.NFS)
	}
	b.WriteString(")")
	return b.String()
}

// Summary returns a condensed single-line representation: frame number,
// relative time and the most interesting decoded layer.
func (p *Pkt) Summary() string {
	var b strings.Builder
	if p.Record != nil {
		fmt.Fprintf(&b, "%d %.6f ", p.Record.Index, p.Record.Rel.Seconds())
	}
	if p.IP != nil {
		fmt.Fprintf(&b, "%s -> %s ", p.IP.Src, p.IP.Dst)
	}
	switch {
	case p.NFS != nil:
		fmt.Fprintf(&b, "%s", p.NFS)
	case p.RPC != nil:
		fmt.Fprintf(&b, "%s", p.RPC)
	case p.TCP != nil:
		fmt.Fprintf(&b, "%s", p.TCP)
	case p.UDP != nil:
		fmt.Fprintf(&b, "%s", p.UDP)
	case p.Ethernet != nil:
		fmt.Fprintf(&b, "%s", p.Ethernet)
	}
	return strings.TrimRight(b.String(), " ")
}
