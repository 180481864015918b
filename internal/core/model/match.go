package model

// MatchResult pairs a queried address with the range it fell into, if any.
// Range is borrowed from the matcher that produced the result.
type MatchResult struct {
	IP      string
	Matched bool
	Range   *IPRange
}

func NewMatchResult(ip string, r *IPRange) MatchResult {
	return MatchResult{IP: ip, Matched: r != nil, Range: r}
}

func (m MatchResult) ASN() (int, bool) {
	if m.Range == nil || m.Range.asn == 0 {
		return 0, false
	}
	return m.Range.asn, true
}

func (m MatchResult) Prefix() (string, bool) {
	if m.Range == nil {
		return "", false
	}
	return m.Range.source, true
}

func (m MatchResult) Label() (string, bool) {
	if m.Range == nil || m.Range.label == "" {
		return "", false
	}
	return m.Range.label, true
}

func (m MatchResult) Export() map[string]any {
	out := map[string]any{
		"ip":      m.IP,
		"matched": m.Matched,
		"prefix":  nil,
		"asn":     nil,
		"label":   nil,
	}
	if prefix, ok := m.Prefix(); ok {
		out["prefix"] = prefix
	}
	if asn, ok := m.ASN(); ok {
		out["asn"] = asn
	}
	if label, ok := m.Label(); ok {
		out["label"] = label
	}
	return out
}
