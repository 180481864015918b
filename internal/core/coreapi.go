package core

import (
	"context"
	"net/netip"
	"time"

	"github.com/ak7sky/asn-service/internal/core/matcher"
	"github.com/ak7sky/asn-service/internal/core/model"
)

type AsnService interface {
	LookupIP(ctx context.Context, ip string) (model.AsnInfo, error)
	Prefixes(ctx context.Context, asn int) ([]model.Prefix, error)
	Asn(ctx context.Context, asn int) (model.AsnResult, error)
	IPBelongsToAsn(ctx context.Context, ip string, asn int) (bool, error)
	IPBelongsToSameAsn(ctx context.Context, sourceIP, targetIP string) (bool, error)
	IPMatchesAnyAsn(ctx context.Context, ip string, asns []int) (int, bool, error)
	BuildMatcher(ctx context.Context, asns ...int) (*matcher.Matcher, error)
	BatchCheck(ctx context.Context, ips []string, asns []int) ([]model.MatchResult, error)
}

// Provider is a source of ASN ownership and announcement data.
type Provider interface {
	Name() string
	LookupIP(ctx context.Context, ip string) (model.AsnInfo, error)
	Prefixes(ctx context.Context, asn int) ([]model.Prefix, error)
	Asn(ctx context.Context, asn int) (model.AsnResult, error)
}

// Cache stores opaque values by key. A miss is reported by ok == false, not an error.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// HostResolver is satisfied by *net.Resolver.
type HostResolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}
