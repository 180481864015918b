package matcher

import (
	"slices"
	"strings"

	"github.com/ak7sky/asn-service/internal/core/model"
)

// Mode selects how Find recovers from a binary search miss on overlapping ranges.
type Mode uint8

const (
	// ModeBounded checks the insertion point and the two ranges before it.
	// A range nested deeper than that under a wider one is not found.
	ModeBounded Mode = iota
	// ModeStrict walks back from the insertion point over a running maximum
	// of range ends and finds every containing range regardless of nesting.
	ModeStrict
)

const neighbourSpan = 2

func (m Mode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	return "bounded"
}

// ParseMode maps a config value to a Mode. Anything but "strict" is bounded.
func ParseMode(s string) Mode {
	if s == ModeStrict.String() {
		return ModeStrict
	}
	return ModeBounded
}

type Option func(*Builder)

func WithMode(mode Mode) Option {
	return func(b *Builder) { b.mode = mode }
}

// Builder collects ranges and compiles them into a Matcher.
// A Builder is not safe for concurrent use.
type Builder struct {
	mode     Mode
	v4       []model.IPRange
	v6       []model.IPRange
	compiled *Matcher
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FromPrefixes builds and compiles a Matcher over prefixes in one call.
func FromPrefixes(prefixes []model.Prefix, opts ...Option) *Matcher {
	return NewBuilder(opts...).AddPrefixes(prefixes).Compile()
}

func (b *Builder) AddPrefix(p model.Prefix) *Builder {
	return b.AddRange(p.ToRange())
}

func (b *Builder) AddPrefixes(prefixes []model.Prefix) *Builder {
	for _, p := range prefixes {
		b.AddPrefix(p)
	}
	return b
}

func (b *Builder) AddPrefixText(text string, opts ...model.Option) error {
	p, err := model.NewPrefix(text, opts...)
	if err != nil {
		return err
	}
	b.AddPrefix(p)
	return nil
}

func (b *Builder) AddIP(ip string, opts ...model.Option) error {
	r, err := model.RangeFromIP(ip, opts...)
	if err != nil {
		return err
	}
	b.AddRange(r)
	return nil
}

func (b *Builder) AddExplicitRange(start, end string, opts ...model.Option) error {
	r, err := model.RangeFromBounds(start, end, opts...)
	if err != nil {
		return err
	}
	b.AddRange(r)
	return nil
}

// AddText accepts "10.0.0.0/8", "10.0.0.1" or "10.0.0.1-10.0.0.9".
func (b *Builder) AddText(text string, opts ...model.Option) error {
	text = strings.TrimSpace(text)
	if start, end, found := strings.Cut(text, "-"); found {
		return b.AddExplicitRange(strings.TrimSpace(start), strings.TrimSpace(end), opts...)
	}
	if strings.Contains(text, "/") {
		return b.AddPrefixText(text, opts...)
	}
	return b.AddIP(text, opts...)
}

func (b *Builder) AddRange(r model.IPRange) *Builder {
	if r.IsIPv6() {
		b.v6 = append(b.v6, r)
	} else {
		b.v4 = append(b.v4, r)
	}
	b.compiled = nil
	return b
}

// Compile sorts a copy of the collected ranges by start address and freezes
// them into a Matcher. Without adds in between it returns the same Matcher.
func (b *Builder) Compile() *Matcher {
	if b.compiled != nil {
		return b.compiled
	}
	b.compiled = &Matcher{
		mode: b.mode,
		v4:   newTable(sortedCopy(b.v4), b.mode),
		v6:   newTable(sortedCopy(b.v6), b.mode),
	}
	return b.compiled
}

// Flush drops every collected range.
func (b *Builder) Flush() *Builder {
	b.v4 = nil
	b.v6 = nil
	b.compiled = nil
	return b
}

func (b *Builder) Count() int {
	return len(b.v4) + len(b.v6)
}

func (b *Builder) Mode() Mode {
	return b.mode
}

func (b *Builder) Contains(ip string) bool {
	return b.Compile().Contains(ip)
}

func (b *Builder) Find(ip string) (*model.IPRange, bool) {
	return b.Compile().Find(ip)
}

func (b *Builder) Match(ip string) model.MatchResult {
	return b.Compile().Match(ip)
}

func (b *Builder) MatchBatch(ips []string) []model.MatchResult {
	return b.Compile().MatchBatch(ips)
}

func (b *Builder) MatchedOnly(ips []string) []model.MatchResult {
	return b.Compile().MatchedOnly(ips)
}

func (b *Builder) UnmatchedOnly(ips []string) []string {
	return b.Compile().UnmatchedOnly(ips)
}

func sortedCopy(ranges []model.IPRange) []model.IPRange {
	out := slices.Clone(ranges)
	slices.SortStableFunc(out, func(a, b model.IPRange) int {
		return a.CompareStart(b)
	})
	return out
}
