package decoder

import (
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"

	"netscope/internal/models"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb}
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func ipv4Frame(t *testing.T, src, dst net.IP, proto layers.IPProtocol, transport ...gopacket.SerializableLayer) []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: proto, SrcIP: src, DstIP: dst}
	return serialize(t, append([]gopacket.SerializableLayer{eth, ip}, transport...)...)
}

func ipv6Frame(t *testing.T, src, dst net.IP, next layers.IPProtocol, transport ...gopacket.SerializableLayer) []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv6}
	ip := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: next, SrcIP: src, DstIP: dst}
	return serialize(t, append([]gopacket.SerializableLayer{eth, ip}, transport...)...)
}

func TestDecodeIPv4TCP(t *testing.T) {
	ts := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	tcp := &layers.TCP{SrcPort: 51000, DstPort: 443, Seq: 1, Window: 1024, SYN: true}
	frame := ipv4Frame(t, net.IPv4(10, 0, 0, 1), net.IPv4(93, 184, 216, 34), layers.IPProtocolTCP,
		tcp, gopacket.Payload("hello"))

	rec, err := Decode(frame, ts)
	require.NoError(t, err)

	assert.Equal(t, models.PacketTypeIPv4, rec.PacketType)
	assert.Equal(t, "10.0.0.1", rec.Source)
	assert.Equal(t, "93.184.216.34", rec.Destination)
	assert.Equal(t, "HTTPS", rec.ProtocolLabel())
	assert.Equal(t, ts, rec.Timestamp)

	// payload is everything after the 14 byte Ethernet and 20 byte IPv4 headers
	assert.Equal(t, frame[34:], rec.Payload.Raw)
	assert.NoError(t, rec.Payload.Verify())
}

func TestDecodeIPv6UDP(t *testing.T) {
	src := net.ParseIP("2001:db8::1")
	dst := net.ParseIP("2001:db8::53")
	udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
	frame := ipv6Frame(t, src, dst, layers.IPProtocolUDP, udp, gopacket.Payload{0x01, 0x02})

	rec, err := Decode(frame, time.Now())
	require.NoError(t, err)

	assert.Equal(t, models.PacketTypeIPv6, rec.PacketType)
	assert.Equal(t, "2001:db8::1", rec.Source)
	assert.Equal(t, "2001:db8::53", rec.Destination)
	assert.Equal(t, "DNS", rec.ProtocolLabel())
	assert.Equal(t, frame[54:], rec.Payload.Raw)
}

func TestDecodeLabels(t *testing.T) {
	a, b := net.IPv4(192, 168, 1, 2), net.IPv4(192, 168, 1, 3)

	tests := []struct {
		name  string
		frame []byte
		want  string
	}{
		{
			name:  "unmapped tcp port",
			frame: ipv4Frame(t, a, b, layers.IPProtocolTCP, &layers.TCP{SrcPort: 1, DstPort: 40404, Window: 1}),
			want:  "TCP",
		},
		{
			name:  "unmapped udp port",
			frame: ipv4Frame(t, a, b, layers.IPProtocolUDP, &layers.UDP{SrcPort: 1, DstPort: 40404}),
			want:  "UDP",
		},
		{
			name:  "icmp",
			frame: ipv4Frame(t, a, b, layers.IPProtocolICMPv4, gopacket.Payload{8, 0, 0, 0}),
			want:  "ICMP",
		},
		{
			name:  "truncated tcp header",
			frame: ipv4Frame(t, a, b, layers.IPProtocolTCP, gopacket.Payload{0x01, 0xbb}),
			want:  "TCP",
		},
		{
			name:  "unassigned number",
			frame: ipv4Frame(t, a, b, layers.IPProtocol(200), gopacket.Payload{1}),
			want:  "Unassigned",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Decode(tt.frame, time.Now())
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.ProtocolLabel())
		})
	}
}

func TestDecodeUnsupportedEtherType(t *testing.T) {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	frame := serialize(t, eth, arp)

	_, info, err := DecodeFrame(frame, time.Now())
	assert.True(t, errors.Is(err, ErrUnsupportedEtherType))
	assert.Equal(t, layers.EthernetTypeARP, info.EtherType)
	assert.Equal(t, srcMAC.String(), info.SrcMAC)
}

func TestDecodeMalformed(t *testing.T) {
	header := []byte{
		0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb,
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
	}

	tests := []struct {
		name  string
		frame []byte
	}{
		{"empty", nil},
		{"short ethernet", header[:8]},
		{"short ipv4", append(append([]byte{}, header...), 0x08, 0x00, 0x45, 0x00, 0x00)},
		{"short ipv6", append(append([]byte{}, header...), 0x86, 0xdd, 0x60, 0x00)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frame, time.Now())
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestDecodeAddressesMatch(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			src := net.IPv4(byte(rng.Intn(223)+1), byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(254)+1))
			dst := net.IPv4(byte(rng.Intn(223)+1), byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(254)+1))
			rec, err := Decode(ipv4Frame(t, src, dst, layers.IPProtocolUDP,
				&layers.UDP{SrcPort: 1000, DstPort: layers.UDPPort(rng.Intn(65536))}), time.Now())
			require.NoError(t, err)
			assert.Equal(t, src.String(), rec.Source)
			assert.Equal(t, dst.String(), rec.Destination)
			continue
		}

		src := make(net.IP, net.IPv6len)
		dst := make(net.IP, net.IPv6len)
		rng.Read(src)
		rng.Read(dst)
		src[0], dst[0] = 0x20, 0x20
		rec, err := Decode(ipv6Frame(t, src, dst, layers.IPProtocolNoNextHeader, gopacket.Payload{0}), time.Now())
		require.NoError(t, err)
		assert.Equal(t, src.String(), rec.Source)
		assert.Equal(t, dst.String(), rec.Destination)
		assert.Equal(t, models.PacketTypeIPv6, rec.PacketType)
	}
}

func TestDecodeIPv4Fragments(t *testing.T) {
	a, b := net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2)
	// continuation bytes that would read as ports 1234 -> 53
	body := gopacket.Payload{0x04, 0xd2, 0x00, 0x35, 0x00, 0x10, 0x00, 0x00, 0xde, 0xad, 0xbe, 0xef}

	fragment := func(offset uint16, flags layers.IPv4Flag) []byte {
		eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
		ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: a, DstIP: b,
			Flags: flags, FragOffset: offset}
		return serialize(t, eth, ip, body)
	}

	tests := []struct {
		name  string
		frame []byte
		want  string
	}{
		{"later fragment", fragment(185, 0), "UDP"},
		{"later fragment with more to come", fragment(185, layers.IPv4MoreFragments), "UDP"},
		{"first fragment", fragment(0, layers.IPv4MoreFragments), "DNS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Decode(tt.frame, time.Now())
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.ProtocolLabel())
			assert.Equal(t, []byte(body), rec.Payload.Raw)
		})
	}
}

func TestDecodeIPv6HopByHopKeepsExtensionHeader(t *testing.T) {
	src := net.ParseIP("fe80::1")
	dst := net.ParseIP("ff02::16")
	hopByHop := []byte{
		byte(layers.IPProtocolICMPv6), 0, // next header, length in 8 byte units past the first
		0x05, 0x02, 0x00, 0x00, // router alert
		0x01, 0x00, // PadN
	}
	icmp := []byte{143, 0, 0, 0}
	body := append(append([]byte{}, hopByHop...), icmp...)

	frame := ipv6Frame(t, src, dst, layers.IPProtocolIPv6HopByHop, gopacket.Payload(body))

	rec, err := Decode(frame, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "HOPOPT", rec.ProtocolLabel())
	assert.Equal(t, body, rec.Payload.Raw)
	assert.Equal(t, frame[54:], rec.Payload.Raw)
}

func TestIPv6PayloadBounds(t *testing.T) {
	data := make([]byte, 40+10)
	for i := range data {
		data[i] = byte(i)
	}

	assert.Equal(t, data[40:46], ipv6Payload(data, 6))
	assert.Equal(t, data[40:], ipv6Payload(data, 10))
	// length larger than the capture is clamped to what was captured
	assert.Equal(t, data[40:], ipv6Payload(data, 400))
	// zero length (jumbogram) keeps the rest of the frame
	assert.Equal(t, data[40:], ipv6Payload(data, 0))
}
