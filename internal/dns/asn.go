package dns

import (
	"context"
	"fmt"

	"github.com/ak7sky/asn-service/internal/core/matcher"
	"github.com/ak7sky/asn-service/internal/core/model"
)

// LookupAsn reports the owner of the first address domain resolves to.
func (r *Resolver) LookupAsn(ctx context.Context, domain string) (model.AsnInfo, error) {
	ips, err := r.ResolveIPs(ctx, domain)
	if err != nil {
		return model.AsnInfo{}, fmt.Errorf("%s %s: %w", errLookupAsn, domain, err)
	}
	info, err := r.asns.LookupIP(ctx, ips[0])
	if err != nil {
		return model.AsnInfo{}, fmt.Errorf("%s %s: %w", errLookupAsn, domain, err)
	}
	return info, nil
}

// DomainBelongsToAsn is true when any address of domain is announced by asn.
// Unresolvable domains yield false.
func (r *Resolver) DomainBelongsToAsn(ctx context.Context, domain string, asn int) (bool, error) {
	ips, ok := r.resolveOrNone(ctx, domain)
	if !ok {
		return false, nil
	}
	for _, ip := range ips {
		belongs, err := r.asns.IPBelongsToAsn(ctx, ip, asn)
		if err != nil {
			return false, err
		}
		if belongs {
			return true, nil
		}
	}
	return false, nil
}

// DomainMatchesAnyAsn returns the first of asns announcing any address of domain.
func (r *Resolver) DomainMatchesAnyAsn(ctx context.Context, domain string, asns []int) (int, bool, error) {
	ips, ok := r.resolveOrNone(ctx, domain)
	if !ok {
		return 0, false, nil
	}
	for _, ip := range ips {
		asn, matched, err := r.asns.IPMatchesAnyAsn(ctx, ip, asns)
		if err != nil {
			return 0, false, err
		}
		if matched {
			return asn, true, nil
		}
	}
	return 0, false, nil
}

func (r *Resolver) DomainMatchesRanges(ctx context.Context, domain string, m *matcher.Matcher) bool {
	ips, ok := r.resolveOrNone(ctx, domain)
	if !ok {
		return false
	}
	for _, ip := range ips {
		if m.Contains(ip) {
			return true
		}
	}
	return false
}

func (r *Resolver) resolveOrNone(ctx context.Context, domain string) ([]string, bool) {
	ips, err := r.ResolveIPs(ctx, domain)
	if err != nil {
		r.logger.Debug("treating %s as unresolved: %s", domain, err)
		return nil, false
	}
	return ips, true
}
