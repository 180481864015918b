package model

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
)

// Net4 is an IPv4 block in integer form, as stored in integer ip columns.
type Net4 struct {
	Addr    uint32
	MaskLen uint8
}

func (net Net4) Mask() uint32 {
	return bits.Reverse32(math.MaxUint32 >> (32 - net.MaskLen))
}

func (net Net4) Contains(ip uint32) bool {
	mask := net.Mask()
	return ip&mask == net.Addr&mask
}

func (net Net4) First() uint32 {
	return net.Addr & net.Mask()
}

func (net Net4) Last() uint32 {
	return net.First() | ^net.Mask()
}

func (p Prefix) Net4() (Net4, error) {
	if len(p.network) != net4Len {
		return Net4{}, fmt.Errorf("%w: %s", ErrUnsupportedForIPv6, p.raw)
	}
	return Net4{Addr: binary.BigEndian.Uint32(p.network), MaskLen: uint8(p.length)}, nil
}
