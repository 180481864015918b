package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ak7sky/asn-service/internal/core/matcher"
	"github.com/ak7sky/asn-service/internal/core/model"
	"github.com/ak7sky/asn-service/internal/dns"
)

const attributePlaceholder = ":attribute"

// ValidationError is a failed rule. Message keeps the ":attribute" placeholder;
// Error substitutes the attribute name.
type ValidationError struct {
	Attribute string
	Message   string
}

func (e *ValidationError) Error() string {
	return strings.ReplaceAll(e.Message, attributePlaceholder, e.Attribute)
}

func fail(attribute, message string) error {
	return &ValidationError{Attribute: attribute, Message: message}
}

type Rule interface {
	Validate(ctx context.Context, attribute, value string) error
}

// AsnMatcher is satisfied by the ASN manager.
type AsnMatcher interface {
	IPMatchesAnyAsn(ctx context.Context, ip string, asns []int) (int, bool, error)
}

// DomainMatcher is satisfied by the DNS resolver.
type DomainMatcher interface {
	ResolveIPs(ctx context.Context, domain string) ([]string, error)
	DomainMatchesAnyAsn(ctx context.Context, domain string, asns []int) (int, bool, error)
}

type ipInAsn struct {
	asns  AsnMatcher
	allow []int
}

// IPInAsn passes addresses announced by one of allow.
func IPInAsn(asns AsnMatcher, allow ...int) Rule {
	return &ipInAsn{asns: asns, allow: allow}
}

func (r *ipInAsn) Validate(ctx context.Context, attribute, value string) error {
	if !validIP(value) {
		return fail(attribute, "The :attribute must be a valid IP address.")
	}
	_, matched, err := r.asns.IPMatchesAnyAsn(ctx, value, r.allow)
	if err != nil {
		return fail(attribute, "Unable to verify ASN for :attribute: "+err.Error())
	}
	if !matched {
		return fail(attribute, "The :attribute must belong to one of the following ASNs: "+asnList(r.allow)+".")
	}
	return nil
}

type ipNotInAsn struct {
	asns    AsnMatcher
	blocked []int
}

// IPNotInAsn rejects addresses announced by one of blocked. Lookup failures let the value through.
func IPNotInAsn(asns AsnMatcher, blocked ...int) Rule {
	return &ipNotInAsn{asns: asns, blocked: blocked}
}

func (r *ipNotInAsn) Validate(ctx context.Context, attribute, value string) error {
	if !validIP(value) {
		return fail(attribute, "The :attribute must be a valid IP address.")
	}
	asn, matched, err := r.asns.IPMatchesAnyAsn(ctx, value, r.blocked)
	if err != nil || !matched {
		return nil
	}
	return fail(attribute, fmt.Sprintf("The :attribute belongs to blocked ASN: AS%d.", asn))
}

type ipInRange struct {
	ranges *matcher.Matcher
}

// IPInRange passes addresses inside any of cidrs.
func IPInRange(cidrs ...string) (Rule, error) {
	b := matcher.NewBuilder(matcher.WithMode(matcher.ModeStrict))
	for _, cidr := range cidrs {
		if err := b.AddPrefixText(cidr); err != nil {
			return nil, err
		}
	}
	return &ipInRange{ranges: b.Compile()}, nil
}

func (r *ipInRange) Validate(_ context.Context, attribute, value string) error {
	if !validIP(value) {
		return fail(attribute, "The :attribute must be a valid IP address.")
	}
	if !r.ranges.Contains(value) {
		return fail(attribute, "The :attribute is not within any of the allowed IP ranges.")
	}
	return nil
}

type domainInAsn struct {
	domains DomainMatcher
	allow   []int
}

// DomainInAsn passes domains resolving into one of allow.
func DomainInAsn(domains DomainMatcher, allow ...int) Rule {
	return &domainInAsn{domains: domains, allow: allow}
}

func (r *domainInAsn) Validate(ctx context.Context, attribute, value string) error {
	if _, err := dns.Normalize(value); err != nil {
		return fail(attribute, "The :attribute must be a valid domain name.")
	}
	if _, err := r.domains.ResolveIPs(ctx, value); err != nil {
		if errors.Is(err, dns.ErrUnresolvable) {
			return fail(attribute, "The :attribute could not be resolved to an IP address.")
		}
		return err
	}
	_, matched, err := r.domains.DomainMatchesAnyAsn(ctx, value, r.allow)
	if err != nil {
		return err
	}
	if !matched {
		return fail(attribute, "The :attribute does not resolve to any of the following ASNs: "+asnList(r.allow)+".")
	}
	return nil
}

func validIP(value string) bool {
	_, err := model.ParseAddress(value)
	return err == nil
}

func asnList(asns []int) string {
	names := make([]string, 0, len(asns))
	for _, asn := range asns {
		names = append(names, fmt.Sprintf("AS%d", asn))
	}
	return strings.Join(names, ", ")
}
