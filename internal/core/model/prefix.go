package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Attrs is the optional metadata carried by prefixes and ranges.
// Empty strings and a zero ASN mean "not set".
type Attrs struct {
	Name        string
	Description string
	Country     string
	ASN         int
}

type Option func(*Attrs)

func WithName(name string) Option {
	return func(a *Attrs) { a.Name = name }
}

// WithLabel is the range-side spelling of WithName.
func WithLabel(label string) Option {
	return WithName(label)
}

func WithDescription(description string) Option {
	return func(a *Attrs) { a.Description = description }
}

func WithCountry(country string) Option {
	return func(a *Attrs) { a.Country = country }
}

func WithASN(asn int) Option {
	return func(a *Attrs) { a.ASN = asn }
}

func newAttrs(opts []Option) Attrs {
	var a Attrs
	for _, opt := range opts {
		if opt != nil {
			opt(&a)
		}
	}
	return a
}

// Prefix is an immutable CIDR block, e.g. "104.16.0.0/12".
type Prefix struct {
	raw         string
	networkText string
	network     []byte
	length      int
	attrs       Attrs
}

func NewPrefix(text string, opts ...Option) (Prefix, error) {
	networkText, lengthText, found := strings.Cut(text, "/")
	if !found {
		return Prefix{}, fmt.Errorf("%w: missing '/' in %q", ErrInvalidPrefix, text)
	}

	length, err := strconv.Atoi(lengthText)
	if err != nil {
		return Prefix{}, fmt.Errorf("%w: non-integer length in %q", ErrInvalidPrefix, text)
	}

	network, err := ParseAddress(networkText)
	if err != nil {
		return Prefix{}, fmt.Errorf("%w: %q: %w", ErrInvalidPrefix, text, err)
	}

	if length < 0 || length > len(network)*8 {
		return Prefix{}, fmt.Errorf("%w: length %d out of range in %q", ErrInvalidPrefix, length, text)
	}

	return Prefix{
		raw:         text,
		networkText: networkText,
		network:     network,
		length:      length,
		attrs:       newAttrs(opts),
	}, nil
}

func MustParsePrefix(text string, opts ...Option) Prefix {
	p, err := NewPrefix(text, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Prefix) String() string      { return p.raw }
func (p Prefix) Raw() string         { return p.raw }
func (p Prefix) Network() string     { return p.networkText }
func (p Prefix) Length() int         { return p.length }
func (p Prefix) Family() Family      { return familyOfLen(len(p.network)) }
func (p Prefix) IsIPv6() bool        { return p.Family() == IPv6 }
func (p Prefix) Name() string        { return p.attrs.Name }
func (p Prefix) Description() string { return p.attrs.Description }
func (p Prefix) Country() string     { return p.attrs.Country }
func (p Prefix) ASN() int            { return p.attrs.ASN }
func (p Prefix) Attrs() Attrs        { return p.attrs }

// Contains reports whether ip lies inside the prefix. Malformed or
// cross-family input yields false.
func (p Prefix) Contains(ip string) bool {
	ipBytes, err := ParseAddress(ip)
	if err != nil || len(ipBytes) != len(p.network) {
		return false
	}
	mask := BuildMask(len(p.network)*8, p.length)
	return CompareBytes(applyMask(ipBytes, mask), applyMask(p.network, mask)) == 0
}

// EndAddress returns the last address of the block.
func (p Prefix) EndAddress() string {
	return FormatAddress(broadcast(p.network, p.length))
}

func (p Prefix) ToRange() IPRange {
	return RangeFromPrefix(p)
}

func (p Prefix) Export() map[string]any {
	return map[string]any{
		"prefix":      p.raw,
		"network":     p.networkText,
		"cidr":        p.length,
		"is_ipv6":     p.IsIPv6(),
		"name":        optString(p.attrs.Name),
		"description": optString(p.attrs.Description),
		"country":     optString(p.attrs.Country),
		"asn":         optInt(p.attrs.ASN),
	}
}

func optString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func optInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

type prefixJSON struct {
	Prefix      string `json:"prefix"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Country     string `json:"country,omitempty"`
	ASN         int    `json:"asn,omitempty"`
}

func (p Prefix) MarshalJSON() ([]byte, error) {
	return json.Marshal(prefixJSON{
		Prefix:      p.raw,
		Name:        p.attrs.Name,
		Description: p.attrs.Description,
		Country:     p.attrs.Country,
		ASN:         p.attrs.ASN,
	})
}

func (p *Prefix) UnmarshalJSON(data []byte) error {
	var raw prefixJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewPrefix(raw.Prefix,
		WithName(raw.Name), WithDescription(raw.Description), WithCountry(raw.Country), WithASN(raw.ASN))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
