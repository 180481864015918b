package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// IPRange is a compiled [start, end] address interval of one family.
type IPRange struct {
	start  []byte
	end    []byte
	source string
	asn    int
	label  string
}

func RangeFromPrefix(p Prefix) IPRange {
	mask := BuildMask(len(p.network)*8, p.length)
	return IPRange{
		start:  applyMask(p.network, mask),
		end:    broadcast(p.network, p.length),
		source: p.raw,
		asn:    p.attrs.ASN,
		label:  p.attrs.Name,
	}
}

// RangeFromIP builds a single-address range (/32 or /128).
func RangeFromIP(ip string, opts ...Option) (IPRange, error) {
	b, err := ParseAddress(ip)
	if err != nil {
		return IPRange{}, err
	}
	attrs := newAttrs(opts)
	return IPRange{
		start:  b,
		end:    bytes.Clone(b),
		source: fmt.Sprintf("%s/%d", ip, len(b)*8),
		asn:    attrs.ASN,
		label:  attrs.Name,
	}, nil
}

// RangeFromBounds builds a range from literal start and end addresses.
// start <= end is the caller's responsibility and is not checked.
func RangeFromBounds(startIP, endIP string, opts ...Option) (IPRange, error) {
	start, err := ParseAddress(startIP)
	if err != nil {
		return IPRange{}, fmt.Errorf("range %s-%s: %w", startIP, endIP, err)
	}
	end, err := ParseAddress(endIP)
	if err != nil {
		return IPRange{}, fmt.Errorf("range %s-%s: %w", startIP, endIP, err)
	}
	if len(start) != len(end) {
		return IPRange{}, fmt.Errorf("%w: mixed families in range %s-%s", ErrInvalidAddress, startIP, endIP)
	}
	attrs := newAttrs(opts)
	return IPRange{
		start:  start,
		end:    end,
		source: startIP + "-" + endIP,
		asn:    attrs.ASN,
		label:  attrs.Name,
	}, nil
}

// Contains compares ip against the bounds. ip must have the range's width.
func (r IPRange) Contains(ip []byte) bool {
	return CompareBytes(ip, r.start) >= 0 && CompareBytes(ip, r.end) <= 0
}

// After reports whether the whole range lies above ip.
func (r IPRange) After(ip []byte) bool {
	return CompareBytes(ip, r.start) < 0
}

// Before reports whether the whole range lies below ip.
func (r IPRange) Before(ip []byte) bool {
	return CompareBytes(ip, r.end) > 0
}

// CompareStart orders ranges by their start address.
func (r IPRange) CompareStart(o IPRange) int {
	return CompareBytes(r.start, o.start)
}

func (r IPRange) Start() []byte        { return bytes.Clone(r.start) }
func (r IPRange) End() []byte          { return bytes.Clone(r.end) }
func (r IPRange) StartAddress() string { return FormatAddress(r.start) }
func (r IPRange) EndAddress() string   { return FormatAddress(r.end) }
func (r IPRange) Family() Family       { return familyOfLen(len(r.start)) }
func (r IPRange) IsIPv6() bool         { return r.Family() == IPv6 }
func (r IPRange) Source() string       { return r.source }
func (r IPRange) ASN() int             { return r.asn }
func (r IPRange) Label() string        { return r.label }

func (r IPRange) StartUint32() (uint32, error) {
	if len(r.start) != net4Len {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedForIPv6, r.source)
	}
	return binary.BigEndian.Uint32(r.start), nil
}

func (r IPRange) EndUint32() (uint32, error) {
	if len(r.end) != net4Len {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedForIPv6, r.source)
	}
	return binary.BigEndian.Uint32(r.end), nil
}

func (r IPRange) Export() map[string]any {
	return map[string]any{
		"prefix":  r.source,
		"start":   r.StartAddress(),
		"end":     r.EndAddress(),
		"is_ipv6": r.IsIPv6(),
		"asn":     optInt(r.asn),
		"label":   optString(r.label),
	}
}
