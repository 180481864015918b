package matcher

import (
	"slices"

	"github.com/ak7sky/asn-service/internal/core/model"
)

// Matcher is a compiled, immutable set of ranges. It is safe for concurrent use.
type Matcher struct {
	mode Mode
	v4   table
	v6   table
}

type table struct {
	ranges []model.IPRange
	// maxEnd[i] is the highest end among ranges[0..i]; strict mode only.
	maxEnd [][]byte
}

func newTable(ranges []model.IPRange, mode Mode) table {
	t := table{ranges: ranges}
	if mode != ModeStrict || len(ranges) == 0 {
		return t
	}
	t.maxEnd = make([][]byte, len(ranges))
	t.maxEnd[0] = ranges[0].End()
	for i := 1; i < len(ranges); i++ {
		end := ranges[i].End()
		if model.CompareBytes(end, t.maxEnd[i-1]) > 0 {
			t.maxEnd[i] = end
		} else {
			t.maxEnd[i] = t.maxEnd[i-1]
		}
	}
	return t
}

func (t table) find(ip []byte) *model.IPRange {
	lo, hi := 0, len(t.ranges)-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		r := &t.ranges[mid]
		switch {
		case r.After(ip):
			hi = mid - 1
		case r.Before(ip):
			lo = mid + 1
		default:
			return r
		}
	}

	// hi is now the last range starting at or below ip.
	if t.maxEnd != nil {
		for i := hi; i >= 0 && model.CompareBytes(t.maxEnd[i], ip) >= 0; i-- {
			if t.ranges[i].Contains(ip) {
				return &t.ranges[i]
			}
		}
		return nil
	}

	for i := max(0, hi); i >= max(0, hi-neighbourSpan); i-- {
		if i < len(t.ranges) && t.ranges[i].Contains(ip) {
			return &t.ranges[i]
		}
	}
	return nil
}

// Find returns the range containing ip. Unparsable input matches nothing.
// The returned range belongs to the Matcher and must not be modified.
func (m *Matcher) Find(ip string) (*model.IPRange, bool) {
	b, err := model.ParseAddress(ip)
	if err != nil {
		return nil, false
	}
	t := m.v4
	if len(b) == model.IPv6.Len() {
		t = m.v6
	}
	r := t.find(b)
	return r, r != nil
}

func (m *Matcher) Contains(ip string) bool {
	_, ok := m.Find(ip)
	return ok
}

func (m *Matcher) Match(ip string) model.MatchResult {
	r, _ := m.Find(ip)
	return model.NewMatchResult(ip, r)
}

// MatchBatch matches every ip, keeping input order and duplicates.
func (m *Matcher) MatchBatch(ips []string) []model.MatchResult {
	results := make([]model.MatchResult, 0, len(ips))
	for _, ip := range ips {
		results = append(results, m.Match(ip))
	}
	return results
}

func (m *Matcher) MatchedOnly(ips []string) []model.MatchResult {
	var results []model.MatchResult
	for _, ip := range ips {
		if res := m.Match(ip); res.Matched {
			results = append(results, res)
		}
	}
	return results
}

func (m *Matcher) UnmatchedOnly(ips []string) []string {
	var out []string
	for _, ip := range ips {
		if !m.Contains(ip) {
			out = append(out, ip)
		}
	}
	return out
}

func (m *Matcher) Count() int {
	return len(m.v4.ranges) + len(m.v6.ranges)
}

func (m *Matcher) Mode() Mode {
	return m.mode
}

// V4Ranges returns the sorted IPv4 ranges.
func (m *Matcher) V4Ranges() []model.IPRange {
	return slices.Clone(m.v4.ranges)
}

// V6Ranges returns the sorted IPv6 ranges.
func (m *Matcher) V6Ranges() []model.IPRange {
	return slices.Clone(m.v6.ranges)
}

// Builder returns a new Builder holding the same ranges, for extending a
// compiled Matcher without touching it.
func (m *Matcher) Builder() *Builder {
	return &Builder{
		mode:     m.mode,
		v4:       slices.Clone(m.v4.ranges),
		v6:       slices.Clone(m.v6.ranges),
		compiled: m,
	}
}
