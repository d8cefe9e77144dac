// Package decoder turns raw Ethernet frames into packet records.
//
// Decoding stops at the network layer: the transport header is only peeked
// at to read ports for labelling, never tracked or reassembled.
package decoder

import (
	"errors"
	"fmt"
	"time"

	"netscope/internal/models"
	"netscope/internal/protocols"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	// ErrUnsupportedEtherType means the frame is neither IPv4 nor IPv6.
	ErrUnsupportedEtherType = errors.New("unsupported ethertype")
	// ErrMalformed means a header was too short or inconsistent to parse.
	ErrMalformed = errors.New("malformed frame")
)

// Frame describes the link layer of a frame, filled in even when no record
// is produced so callers can log what was dropped.
type Frame struct {
	SrcMAC    string
	DstMAC    string
	EtherType layers.EthernetType
}

// Decode parses one Ethernet frame. A nil error means exactly one record;
// otherwise the error wraps ErrUnsupportedEtherType or ErrMalformed.
func Decode(frame []byte, ts time.Time) (models.PacketRecord, error) {
	rec, _, err := DecodeFrame(frame, ts)
	return rec, err
}

// DecodeFrame is Decode that also reports the Ethernet header.
func DecodeFrame(frame []byte, ts time.Time) (models.PacketRecord, Frame, error) {
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(frame, gopacket.NilDecodeFeedback); err != nil {
		return models.PacketRecord{}, Frame{}, fmt.Errorf("%w: ethernet: %v", ErrMalformed, err)
	}
	info := Frame{
		SrcMAC:    eth.SrcMAC.String(),
		DstMAC:    eth.DstMAC.String(),
		EtherType: eth.EthernetType,
	}

	var (
		rec models.PacketRecord
		err error
	)
	switch eth.EthernetType {
	case layers.EthernetTypeIPv4:
		rec, err = decodeIPv4(eth.Payload)
	case layers.EthernetTypeIPv6:
		rec, err = decodeIPv6(eth.Payload)
	default:
		return models.PacketRecord{}, info, fmt.Errorf("%w: %v", ErrUnsupportedEtherType, eth.EthernetType)
	}
	if err != nil {
		return models.PacketRecord{}, info, err
	}
	rec.Timestamp = ts
	return rec, info, nil
}

func decodeIPv4(data []byte) (models.PacketRecord, error) {
	var ip layers.IPv4
	if err := ip.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return models.PacketRecord{}, fmt.Errorf("%w: ipv4: %v", ErrMalformed, err)
	}
	if len(ip.SrcIP) == 0 || len(ip.DstIP) == 0 {
		return models.PacketRecord{}, fmt.Errorf("%w: ipv4: missing address", ErrMalformed)
	}
	label := protocols.Label(ip.Protocol)
	if ip.FragOffset == 0 {
		label = classify(ip.Protocol, ip.Payload)
	}
	return models.PacketRecord{
		PacketType:  models.PacketTypeIPv4,
		Source:      ip.SrcIP.String(),
		Destination: ip.DstIP.String(),
		Protocol:    &label,
		Payload:     models.NewPayload(ip.Payload),
	}, nil
}

func decodeIPv6(data []byte) (models.PacketRecord, error) {
	var ip layers.IPv6
	if err := ip.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return models.PacketRecord{}, fmt.Errorf("%w: ipv6: %v", ErrMalformed, err)
	}
	if len(ip.SrcIP) == 0 || len(ip.DstIP) == 0 {
		return models.PacketRecord{}, fmt.Errorf("%w: ipv6: missing address", ErrMalformed)
	}
	label := classify(ip.NextHeader, ip.Payload)
	return models.PacketRecord{
		PacketType:  models.PacketTypeIPv6,
		Source:      ip.SrcIP.String(),
		Destination: ip.DstIP.String(),
		Protocol:    &label,
		Payload:     models.NewPayload(ipv6Payload(data, ip.Length)),
	}, nil
}

// ipv6Payload is everything after the fixed header, extension headers
// included. gopacket strips Hop-by-Hop options from IPv6.Payload.
func ipv6Payload(data []byte, length uint16) []byte {
	const headerLen = 40
	end := len(data)
	if length > 0 && headerLen+int(length) < end {
		end = headerLen + int(length)
	}
	return data[headerLen:end]
}

// classify labels the transport. TCP and UDP get a service name when the
// destination port is well known; otherwise the protocol number decides.
// Callers must not pass non-first fragments, which carry no transport header.
func classify(proto layers.IPProtocol, payload []byte) string {
	var srcPort, dstPort uint16
	switch proto {
	case layers.IPProtocolTCP:
		var tcp layers.TCP
		if err := tcp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			return protocols.Label(proto)
		}
		srcPort, dstPort = uint16(tcp.SrcPort), uint16(tcp.DstPort)
	case layers.IPProtocolUDP:
		var udp layers.UDP
		if err := udp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			return protocols.Label(proto)
		}
		srcPort, dstPort = uint16(udp.SrcPort), uint16(udp.DstPort)
	default:
		return protocols.Label(proto)
	}
	if name := protocols.LabelPort(proto, srcPort, dstPort); name != protocols.ReservedPort {
		return name
	}
	return protocols.Label(proto)
}
