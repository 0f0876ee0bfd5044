package decoder

import (
	"encoding/binary"
	"net/netip"

	"nfscap.xyz/nfscap/internal/core"
)

const (
	ipv4HeaderMinLen = 20
	ipv6HeaderLen    = 40
)

// decodeIP decodes the network layer, normalizing IPv4 and IPv6 into the
// same {src, dst, protocol, total_size} view so the transport decoder and
// the matcher treat both versions uniformly.
func decodeIP(ctx *Context) {
	b, err := ctx.Cursor.Peek(1)
	if err != nil {
		return
	}
	switch b[0] >> 4 {
	case 4:
		decodeIPv4(ctx)
	case 6:
		decodeIPv6(ctx)
	}
}

func decodeIPv4(ctx *Context) {
	u := ctx.Cursor
	b, err := u.Read(ipv4HeaderMinLen)
	if err != nil {
		return
	}
	headerLen := int(b[0]&0x0F) * 4
	flagsOffset := binary.BigEndian.Uint16(b[6:8])
	src, _ := netip.AddrFromSlice(b[12:16])
	dst, _ := netip.AddrFromSlice(b[16:20])

	ip := &core.IP{
		Version:        4,
		HeaderSize:     headerLen,
		DSCP:           b[1] >> 2,
		ECN:            b[1] & 0x03,
		TotalSize:      binary.BigEndian.Uint16(b[2:4]),
		ID:             binary.BigEndian.Uint16(b[4:6]),
		DF:             uint8((flagsOffset >> 14) & 0x01),
		MF:             uint8((flagsOffset >> 13) & 0x01),
		FragmentOffset: flagsOffset & 0x1FFF,
		TTL:            b[8],
		Protocol:       b[9],
		Checksum:       binary.BigEndian.Uint16(b[10:12]),
		Src:            src,
		Dst:            dst,
	}
	ctx.Pkt.IP = ip

	if headerLen > ipv4HeaderMinLen {
		if ip.Options, err = u.Read(headerLen - ipv4HeaderMinLen); err != nil {
			return
		}
	}
	dispatchTransport(ctx, ip)
}

func decodeIPv6(ctx *Context) {
	u := ctx.Cursor
	b, err := u.Read(ipv6HeaderLen)
	if err != nil {
		return
	}
	src, _ := netip.AddrFromSlice(b[8:24])
	dst, _ := netip.AddrFromSlice(b[24:40])

	ip := &core.IP{
		Version:    6,
		HeaderSize: ipv6HeaderLen,
		TotalSize:  ipv6HeaderLen + binary.BigEndian.Uint16(b[4:6]),
		Protocol:   b[6], // Next Header
		TTL:        b[7], // Hop Limit
		Src:        src,
		Dst:        dst,
	}
	ctx.Pkt.IP = ip
	dispatchTransport(ctx, ip)
}

func dispatchTransport(ctx *Context, ip *core.IP) {
	switch ip.Protocol {
	case protocolTCP:
		decodeTCP(ctx, ip)
	case protocolUDP:
		decodeUDP(ctx)
	default:
		ip.Data = ctx.Cursor.Bytes()
	}
}
