package dns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/ak7sky/asn-service/internal/core"
	"github.com/ak7sky/asn-service/internal/logger"
	"golang.org/x/net/idna"
	"golang.org/x/sync/singleflight"
)

var ErrUnresolvable = errors.New("unable to resolve domain to an ip address")

var errLookupAsn = "failed to look up asn of"

type RecordType string

const (
	RecordA    RecordType = "A"
	RecordAAAA RecordType = "AAAA"
)

// ParseRecordType maps "AAAA" (any case) to RecordAAAA and everything else to RecordA.
func ParseRecordType(s string) RecordType {
	if strings.EqualFold(strings.TrimSpace(s), string(RecordAAAA)) {
		return RecordAAAA
	}
	return RecordA
}

func (rt RecordType) network() string {
	if rt == RecordAAAA {
		return "ip6"
	}
	return "ip4"
}

type CacheSettings struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// Resolver maps domains to addresses and checks them against ASNs.
type Resolver struct {
	asns       core.AsnService
	lookup     core.HostResolver
	recordType RecordType
	cache      core.Cache
	cacheCfg   CacheSettings
	logger     logger.Logger
	lookups    singleflight.Group
}

type Option func(*Resolver)

func WithHostResolver(lookup core.HostResolver) Option {
	return func(r *Resolver) { r.lookup = lookup }
}

func WithRecordType(rt RecordType) Option {
	return func(r *Resolver) { r.recordType = rt }
}

func WithCache(cache core.Cache, settings CacheSettings) Option {
	return func(r *Resolver) {
		r.cache = cache
		r.cacheCfg = settings
	}
}

func WithLogger(log logger.Logger) Option {
	return func(r *Resolver) { r.logger = log }
}

func New(asns core.AsnService, opts ...Option) *Resolver {
	r := &Resolver{
		asns:       asns,
		lookup:     net.DefaultResolver,
		recordType: RecordA,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Normalize turns user input such as "https://Example.COM./path" into "example.com".
// Internationalised names are converted to their ASCII form.
func Normalize(domain string) (string, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain, _, _ = strings.Cut(domain, "/")
	domain = strings.TrimRight(domain, ".")
	if domain == "" {
		return "", fmt.Errorf("%w: empty domain", ErrUnresolvable)
	}

	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUnresolvable, domain, err)
	}
	return ascii, nil
}

// ResolveIPs returns the distinct addresses of domain, in resolver order.
func (r *Resolver) ResolveIPs(ctx context.Context, domain string) ([]string, error) {
	name, err := Normalize(domain)
	if err != nil {
		return nil, err
	}

	key := r.cacheCfg.Prefix + "dns:" + name
	if ips, ok := r.cached(ctx, key); ok {
		return ips, nil
	}

	ch := r.lookups.DoChan(key, func() (any, error) {
		return r.resolve(context.WithoutCancel(ctx), name)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		ips := res.Val.([]string)
		r.store(ctx, key, ips)
		return ips, nil
	}
}

func (r *Resolver) resolve(ctx context.Context, name string) ([]string, error) {
	addrs, err := r.lookup.LookupNetIP(ctx, r.recordType.network(), name)
	if err != nil {
		r.logger.Debug("lookup of %s failed: %s", name, err)
		return nil, fmt.Errorf("%w: %s", ErrUnresolvable, name)
	}

	ips := make([]string, 0, len(addrs))
	seen := make(map[netip.Addr]struct{}, len(addrs))
	for _, addr := range addrs {
		addr = addr.Unmap().WithZone("")
		if (r.recordType == RecordAAAA) != addr.Is6() {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		ips = append(ips, addr.String())
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvable, name)
	}
	return ips, nil
}

func (r *Resolver) cached(ctx context.Context, key string) ([]string, bool) {
	if r.cache == nil || !r.cacheCfg.Enabled {
		return nil, false
	}
	raw, found, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache read of %s failed: %s", key, err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var ips []string
	if err = json.Unmarshal(raw, &ips); err != nil || len(ips) == 0 {
		return nil, false
	}
	return ips, true
}

func (r *Resolver) store(ctx context.Context, key string, ips []string) {
	if r.cache == nil || !r.cacheCfg.Enabled {
		return
	}
	raw, err := json.Marshal(ips)
	if err != nil {
		return
	}
	if err = r.cache.Set(ctx, key, raw, r.cacheCfg.TTL); err != nil {
		r.logger.Warn("cache write of %s failed: %s", key, err)
	}
}
