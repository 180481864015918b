package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ak7sky/asn-service/internal/core"
	"github.com/ak7sky/asn-service/internal/core/matcher"
	"github.com/ak7sky/asn-service/internal/core/model"
	"github.com/ak7sky/asn-service/internal/logger"
	"github.com/ak7sky/asn-service/internal/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	errLookupIP     = "failed to look up asn of"
	errGetPrefixes  = "failed to get prefixes of"
	errGetAsn       = "failed to get"
	errBuildMatcher = "failed to build matcher"
	errFlushCache   = "failed to flush cache of"
)

const (
	defaultChunkSize = 1000
	fetchConcurrency = 8
)

type CacheSettings struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// AsnManager answers ASN questions from a provider, caching what it fetches.
type AsnManager struct {
	provider  core.Provider
	cache     core.Cache
	cacheCfg  CacheSettings
	chunkSize int
	mode      matcher.Mode
	metrics   *metrics.Metrics
	logger    logger.Logger
	loads     singleflight.Group
}

type Option func(*AsnManager)

func WithCache(cache core.Cache, settings CacheSettings) Option {
	return func(m *AsnManager) {
		m.cache = cache
		m.cacheCfg = settings
	}
}

func WithChunkSize(size int) Option {
	return func(m *AsnManager) {
		if size > 0 {
			m.chunkSize = size
		}
	}
}

func WithMatcherMode(mode matcher.Mode) Option {
	return func(m *AsnManager) { m.mode = mode }
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *AsnManager) { m.metrics = metrics }
}

func WithLogger(log logger.Logger) Option {
	return func(m *AsnManager) { m.logger = log }
}

func New(provider core.Provider, opts ...Option) *AsnManager {
	m := &AsnManager{
		provider:  provider,
		chunkSize: defaultChunkSize,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *AsnManager) Provider() core.Provider {
	return m.provider
}

func (m *AsnManager) LookupIP(ctx context.Context, ip string) (model.AsnInfo, error) {
	info, err := cached(ctx, m, "ip", "ip:"+ip, func(ctx context.Context) (model.AsnInfo, error) {
		return m.provider.LookupIP(ctx, ip)
	})
	if err != nil {
		return model.AsnInfo{}, fmt.Errorf("%s %s: %w", errLookupIP, ip, err)
	}
	return info, nil
}

func (m *AsnManager) Prefixes(ctx context.Context, asn int) ([]model.Prefix, error) {
	prefixes, err := cached(ctx, m, "prefixes", prefixesKey(asn), func(ctx context.Context) ([]model.Prefix, error) {
		return m.provider.Prefixes(ctx, asn)
	})
	if err != nil {
		return nil, fmt.Errorf("%s AS%d: %w", errGetPrefixes, asn, err)
	}
	return prefixes, nil
}

func (m *AsnManager) Asn(ctx context.Context, asn int) (model.AsnResult, error) {
	res, err := cached(ctx, m, "asn", asnKey(asn), func(ctx context.Context) (model.AsnResult, error) {
		return m.provider.Asn(ctx, asn)
	})
	if err != nil {
		return model.AsnResult{}, fmt.Errorf("%s AS%d: %w", errGetAsn, asn, err)
	}
	return res, nil
}

func (m *AsnManager) IPBelongsToAsn(ctx context.Context, ip string, asn int) (bool, error) {
	prefixes, err := m.Prefixes(ctx, asn)
	if err != nil {
		return false, err
	}
	for _, p := range prefixes {
		if p.Contains(ip) {
			return true, nil
		}
	}
	return false, nil
}

// IPBelongsToSameAsn resolves the owner of sourceIP and checks targetIP against it.
func (m *AsnManager) IPBelongsToSameAsn(ctx context.Context, sourceIP, targetIP string) (bool, error) {
	info, err := m.LookupIP(ctx, sourceIP)
	if err != nil {
		return false, err
	}
	return m.IPBelongsToAsn(ctx, targetIP, info.ASN)
}

// IPMatchesAnyAsn returns the first of asns, in argument order, that announces ip.
func (m *AsnManager) IPMatchesAnyAsn(ctx context.Context, ip string, asns []int) (int, bool, error) {
	for _, asn := range asns {
		ok, err := m.IPBelongsToAsn(ctx, ip, asn)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return asn, true, nil
		}
	}
	return 0, false, nil
}

// BuildMatcher fetches the prefixes of every asn concurrently and compiles
// them, in argument order, into one Matcher.
func (m *AsnManager) BuildMatcher(ctx context.Context, asns ...int) (*matcher.Matcher, error) {
	fetched := make([][]model.Prefix, len(asns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, asn := range asns {
		g.Go(func() error {
			prefixes, err := m.Prefixes(gctx, asn)
			if err != nil {
				return err
			}
			fetched[i] = prefixes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", errBuildMatcher, err)
	}

	b := matcher.NewBuilder(matcher.WithMode(m.mode))
	for _, prefixes := range fetched {
		b.AddPrefixes(prefixes)
	}
	compiled := b.Compile()
	m.logger.Debug("compiled matcher of %d ranges for %v", compiled.Count(), asns)
	return compiled, nil
}

// BatchCheck matches ips against the prefixes of asns in chunks, keeping input order.
func (m *AsnManager) BatchCheck(ctx context.Context, ips []string, asns []int) ([]model.MatchResult, error) {
	compiled, err := m.BuildMatcher(ctx, asns...)
	if err != nil {
		return nil, err
	}

	results := make([]model.MatchResult, 0, len(ips))
	matched := 0
	for start := 0; start < len(ips); start += m.chunkSize {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		for _, res := range compiled.MatchBatch(ips[start:min(start+m.chunkSize, len(ips))]) {
			if res.Matched {
				matched++
			}
			results = append(results, res)
		}
	}
	m.metrics.RecordMatches(ctx, len(results), matched)
	return results, nil
}

func (m *AsnManager) FlushAsn(ctx context.Context, asn int) error {
	if m.cache == nil {
		return nil
	}
	err := m.cache.Delete(ctx, m.cacheCfg.Prefix+prefixesKey(asn), m.cacheCfg.Prefix+asnKey(asn))
	if err != nil {
		return fmt.Errorf("%s AS%d: %w", errFlushCache, asn, err)
	}
	return nil
}

func (m *AsnManager) FlushIP(ctx context.Context, ip string) error {
	if m.cache == nil {
		return nil
	}
	if err := m.cache.Delete(ctx, m.cacheCfg.Prefix+"ip:"+ip); err != nil {
		return fmt.Errorf("%s %s: %w", errFlushCache, ip, err)
	}
	return nil
}

func prefixesKey(asn int) string {
	return "prefixes:" + strconv.Itoa(asn)
}

func asnKey(asn int) string {
	return "asn:" + strconv.Itoa(asn)
}

// cached returns the cached value of key or loads it from the provider.
// Cache failures are logged and fall through to the provider.
func cached[T any](ctx context.Context, m *AsnManager, kind, key string, load func(context.Context) (T, error)) (T, error) {
	if m.cache == nil || !m.cacheCfg.Enabled {
		return callProvider(ctx, m, kind, load)
	}

	fullKey := m.cacheCfg.Prefix + key
	raw, found, err := m.cache.Get(ctx, fullKey)
	if err != nil {
		m.logger.Warn("cache read of %s failed: %s", fullKey, err)
	}
	if found {
		var value T
		if err = json.Unmarshal(raw, &value); err == nil {
			m.metrics.RecordCacheLookup(ctx, kind, true)
			return value, nil
		}
		m.logger.Warn("dropping undecodable cache entry %s: %s", fullKey, err)
	}
	m.metrics.RecordCacheLookup(ctx, kind, false)

	ch := m.loads.DoChan(fullKey, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		value, err := callProvider(ctx, m, kind, load)
		if err != nil {
			return value, err
		}
		if raw, err := json.Marshal(value); err != nil {
			m.logger.Warn("failed to encode %s for cache: %s", fullKey, err)
		} else if err = m.cache.Set(ctx, fullKey, raw, m.cacheCfg.TTL); err != nil {
			m.logger.Warn("cache write of %s failed: %s", fullKey, err)
		}
		return value, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func callProvider[T any](ctx context.Context, m *AsnManager, op string, load func(context.Context) (T, error)) (T, error) {
	started := time.Now()
	value, err := load(ctx)
	m.metrics.RecordProviderCall(ctx, m.provider.Name(), op, time.Since(started), err)
	return value, err
}
