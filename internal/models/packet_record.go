package models

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 form stored for every record. The offset is
// always numeric so a stored row keeps the zone it was captured in.
const TimestampLayout = "2006-01-02T15:04:05.000000000-07:00"

// UnknownProtocol labels a record whose protocol could not be resolved.
const UnknownProtocol = "Unknown Protocol"

// PacketType is the network layer a record was decoded from.
type PacketType string

const (
	PacketTypeIPv4 PacketType = "IPv4"
	PacketTypeIPv6 PacketType = "IPv6"
)

// PacketRecord holds one decoded frame.
type PacketRecord struct {
	ID          int64      `json:"id,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
	PacketType  PacketType `json:"packet_type"`
	Source      string     `json:"source"`
	Destination string     `json:"destination"`
	Protocol    *string    `json:"protocol,omitempty"`
	Payload     Payload    `json:"payload"`
}

// ProtocolLabel returns the protocol, or UnknownProtocol when classification
// did not run.
func (r PacketRecord) ProtocolLabel() string {
	if r.Protocol == nil {
		return UnknownProtocol
	}
	return *r.Protocol
}

// FormatTimestamp renders the record time in TimestampLayout.
func (r PacketRecord) FormatTimestamp() string {
	return r.Timestamp.Format(TimestampLayout)
}

// ParseTimestamp reads a timestamp written with TimestampLayout. RFC 3339
// values from other writers are accepted too.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(TimestampLayout, s); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid record timestamp %q: %w", s, err)
	}
	return ts, nil
}

// Payload is the network-layer payload kept in every stored encoding.
// Text is a lossy display form and is not expected to round-trip.
type Payload struct {
	Raw    []byte `json:"raw"`
	Base64 string `json:"base64"`
	Hex    string `json:"hex"`
	Text   string `json:"text"`
}

// NewPayload derives all encodings from b. The slice is copied, so b may be
// a buffer the capture source reuses.
func NewPayload(b []byte) Payload {
	raw := make([]byte, len(b))
	copy(raw, b)
	return Payload{
		Raw:    raw,
		Base64: base64.StdEncoding.EncodeToString(raw),
		Hex:    hex.EncodeToString(raw),
		Text:   strings.ToValidUTF8(string(raw), "�"),
	}
}

// Verify checks that the base64 and hex forms decode back to Raw.
func (p Payload) Verify() error {
	fromB64, err := base64.StdEncoding.DecodeString(p.Base64)
	if err != nil {
		return fmt.Errorf("payload base64: %w", err)
	}
	if !bytes.Equal(fromB64, p.Raw) {
		return fmt.Errorf("payload base64 does not match raw bytes")
	}
	fromHex, err := hex.DecodeString(p.Hex)
	if err != nil {
		return fmt.Errorf("payload hex: %w", err)
	}
	if !bytes.Equal(fromHex, p.Raw) {
		return fmt.Errorf("payload hex does not match raw bytes")
	}
	return nil
}

// IPStats counts how often an address appeared on each side of a record.
type IPStats struct {
	SourceCount      int `json:"source_count"`
	DestinationCount int `json:"destination_count"`
}

// TimeBucket is the number of records whose timestamp falls in one
// HH:MM:SS second.
type TimeBucket struct {
	Time  string `json:"time"`
	Count int    `json:"count"`
}
