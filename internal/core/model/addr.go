package model

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

var (
	ErrInvalidAddress     = errors.New("invalid ip address")
	ErrInvalidPrefix      = errors.New("invalid cidr prefix")
	ErrUnsupportedForIPv6 = errors.New("not supported for ipv6 range")
)

type Family uint8

const (
	IPv4 Family = 4
	IPv6 Family = 6
)

func familyOfLen(n int) Family {
	if n == net6Len {
		return IPv6
	}
	return IPv4
}

const (
	net4Len = 4
	net6Len = 16
)

// Len returns the address width of the family in bytes.
func (f Family) Len() int {
	if f == IPv6 {
		return net6Len
	}
	return net4Len
}

func (f Family) Bits() int {
	return f.Len() * 8
}

func (f Family) String() string {
	if f == IPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// ParseAddress parses an IPv4 or IPv6 literal into big-endian bytes.
// Text containing ':' is IPv6 (16 bytes), anything else IPv4 (4 bytes).
func ParseAddress(text string) ([]byte, error) {
	if strings.Contains(text, "%") {
		return nil, fmt.Errorf("%w: zone is not supported: %q", ErrInvalidAddress, text)
	}
	addr, err := netip.ParseAddr(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, text)
	}

	if strings.Contains(text, ":") {
		b := addr.As16()
		return b[:], nil
	}
	if !addr.Is4() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, text)
	}
	b := addr.As4()
	return b[:], nil
}

// FormatAddress renders 4 or 16 address bytes as text. Any other length yields "".
func FormatAddress(b []byte) string {
	addr, ok := netip.AddrFromSlice(b)
	if !ok {
		return ""
	}
	return addr.String()
}

// BuildMask returns totalBits/8 bytes with the leading prefixLen bits set.
func BuildMask(totalBits, prefixLen int) []byte {
	mask := make([]byte, totalBits/8)
	if prefixLen > totalBits {
		prefixLen = totalBits
	}
	full := prefixLen / 8
	for i := 0; i < full && i < len(mask); i++ {
		mask[i] = 0xff
	}
	if rem := prefixLen % 8; rem > 0 && full < len(mask) {
		mask[full] = byte(0xff << (8 - rem))
	}
	return mask
}

// CompareBytes compares equal-length addresses as unsigned big-endian numbers.
func CompareBytes(a, b []byte) int {
	return bytes.Compare(a, b)
}

func applyMask(addr, mask []byte) []byte {
	out := make([]byte, len(addr))
	for i := range addr {
		out[i] = addr[i] & mask[i]
	}
	return out
}

func broadcast(network []byte, prefixLen int) []byte {
	end := bytes.Clone(network)
	hostBits := len(end)*8 - prefixLen
	for i := len(end) - 1; i >= 0 && hostBits > 0; i-- {
		bits := min(hostBits, 8)
		end[i] |= byte(1<<bits - 1)
		hostBits -= bits
	}
	return end
}
