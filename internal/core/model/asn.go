package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidASN = errors.New("invalid asn")

// ParseASN accepts "AS13335", "as13335" or "13335".
func ParseASN(text string) (int, error) {
	digits := strings.TrimSpace(text)
	if len(digits) >= 2 && strings.EqualFold(digits[:2], "AS") {
		digits = digits[2:]
	}
	asn, err := strconv.ParseUint(digits, 10, 32)
	if err != nil || asn == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidASN, text)
	}
	return int(asn), nil
}

// AsnInfo describes an autonomous system as reported by a provider.
type AsnInfo struct {
	ASN         int    `json:"asn"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Country     string `json:"country,omitempty"`
	RIR         string `json:"rir,omitempty"`
}

func (i AsnInfo) Export() map[string]any {
	return map[string]any{
		"asn":         i.ASN,
		"name":        i.Name,
		"description": i.Description,
		"country":     optString(i.Country),
		"rir":         optString(i.RIR),
	}
}

type AsnResult struct {
	Info     AsnInfo  `json:"info"`
	Prefixes []Prefix `json:"prefixes"`
}

func (r AsnResult) ContainsIP(ip string) bool {
	_, ok := r.FindPrefixForIP(ip)
	return ok
}

// FindPrefixForIP returns the first prefix, in announcement order, containing ip.
func (r AsnResult) FindPrefixForIP(ip string) (Prefix, bool) {
	for _, p := range r.Prefixes {
		if p.Contains(ip) {
			return p, true
		}
	}
	return Prefix{}, false
}

func (r AsnResult) IPv4Prefixes() []Prefix {
	return filterFamily(r.Prefixes, IPv4)
}

func (r AsnResult) IPv6Prefixes() []Prefix {
	return filterFamily(r.Prefixes, IPv6)
}

func (r AsnResult) Export() map[string]any {
	prefixes := make([]any, 0, len(r.Prefixes))
	for _, p := range r.Prefixes {
		prefixes = append(prefixes, p.Export())
	}
	return map[string]any{
		"info":     r.Info.Export(),
		"prefixes": prefixes,
	}
}

func FilterFamily(prefixes []Prefix, family Family) []Prefix {
	return filterFamily(prefixes, family)
}

func filterFamily(prefixes []Prefix, family Family) []Prefix {
	out := make([]Prefix, 0, len(prefixes))
	for _, p := range prefixes {
		if p.Family() == family {
			out = append(out, p)
		}
	}
	return out
}
