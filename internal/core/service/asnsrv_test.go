package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ak7sky/asn-service/internal/core/matcher"
	"github.com/ak7sky/asn-service/internal/core/model"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
}

func (mp *mockProvider) Name() string {
	return "mock"
}

func (mp *mockProvider) LookupIP(_ context.Context, ip string) (model.AsnInfo, error) {
	args := mp.Called(ip)
	return args.Get(0).(model.AsnInfo), args.Error(1)
}

func (mp *mockProvider) Prefixes(_ context.Context, asn int) ([]model.Prefix, error) {
	args := mp.Called(asn)
	return args.Get(0).([]model.Prefix), args.Error(1)
}

func (mp *mockProvider) Asn(_ context.Context, asn int) (model.AsnResult, error) {
	args := mp.Called(asn)
	return args.Get(0).(model.AsnResult), args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (mc *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	args := mc.Called(key)
	value, _ := args.Get(0).([]byte)
	return value, args.Bool(1), args.Error(2)
}

func (mc *mockCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	args := mc.Called(key, value, ttl)
	return args.Error(0)
}

func (mc *mockCache) Delete(_ context.Context, keys ...string) error {
	args := mc.Called(keys)
	return args.Error(0)
}

var (
	cloudflare = model.AsnInfo{ASN: 13335, Name: "CLOUDFLARENET", Description: "Cloudflare, Inc.", Country: "US"}
	google     = model.AsnInfo{ASN: 15169, Name: "GOOGLE", Description: "Google LLC", Country: "US"}
	settings   = CacheSettings{Enabled: true, TTL: time.Hour, Prefix: "asn:"}
)

func cloudflarePrefixes() []model.Prefix {
	return []model.Prefix{
		model.MustParsePrefix("104.16.0.0/13", model.WithASN(13335)),
		model.MustParsePrefix("172.64.0.0/13", model.WithASN(13335)),
		model.MustParsePrefix("2606:4700::/32", model.WithASN(13335)),
	}
}

func googlePrefixes() []model.Prefix {
	return []model.Prefix{
		model.MustParsePrefix("8.8.8.0/24", model.WithASN(15169)),
		model.MustParsePrefix("142.250.0.0/15", model.WithASN(15169)),
	}
}

func TestLookupIP(t *testing.T) {
	ctx := context.Background()

	t.Run("ok: no cache", func(t *testing.T) {
		provider := &mockProvider{}
		asnsrv := New(provider)

		provider.On("LookupIP", "1.1.1.1").Return(cloudflare, nil)

		info, err := asnsrv.LookupIP(ctx, "1.1.1.1")

		require.NoError(t, err)
		require.Equal(t, cloudflare, info)
		provider.AssertCalled(t, "LookupIP", "1.1.1.1")
	})

	t.Run("err: provider failed", func(t *testing.T) {
		provider := &mockProvider{}
		asnsrv := New(provider)

		expErr := errors.New("provider is down")
		provider.On("LookupIP", "1.1.1.1").Return(model.AsnInfo{}, expErr)

		info, err := asnsrv.LookupIP(ctx, "1.1.1.1")

		require.EqualError(t, err, fmt.Sprintf("%s %s: %v", errLookupIP, "1.1.1.1", expErr))
		require.ErrorIs(t, err, expErr)
		require.Zero(t, info)
	})

	t.Run("ok: cache hit", func(t *testing.T) {
		provider := &mockProvider{}
		cache := &mockCache{}
		asnsrv := New(provider, WithCache(cache, settings))

		raw, err := json.Marshal(cloudflare)
		require.NoError(t, err)
		cache.On("Get", "asn:ip:1.1.1.1").Return(raw, true, nil)

		info, err := asnsrv.LookupIP(ctx, "1.1.1.1")

		require.NoError(t, err)
		require.Equal(t, cloudflare, info)
		provider.AssertNotCalled(t, "LookupIP", mock.Anything)
	})

	t.Run("ok: cache miss is stored", func(t *testing.T) {
		provider := &mockProvider{}
		cache := &mockCache{}
		asnsrv := New(provider, WithCache(cache, settings))

		raw, err := json.Marshal(cloudflare)
		require.NoError(t, err)
		cache.On("Get", "asn:ip:1.1.1.1").Return(nil, false, nil)
		cache.On("Set", "asn:ip:1.1.1.1", raw, time.Hour).Return(nil)
		provider.On("LookupIP", "1.1.1.1").Return(cloudflare, nil)

		info, err := asnsrv.LookupIP(ctx, "1.1.1.1")

		require.NoError(t, err)
		require.Equal(t, cloudflare, info)
		cache.AssertCalled(t, "Set", "asn:ip:1.1.1.1", raw, time.Hour)
	})

	t.Run("ok: cache failures fall through", func(t *testing.T) {
		provider := &mockProvider{}
		cache := &mockCache{}
		asnsrv := New(provider, WithCache(cache, settings))

		cache.On("Get", "asn:ip:1.1.1.1").Return(nil, false, errors.New("connection refused"))
		cache.On("Set", "asn:ip:1.1.1.1", mock.Anything, time.Hour).Return(errors.New("connection refused"))
		provider.On("LookupIP", "1.1.1.1").Return(cloudflare, nil)

		info, err := asnsrv.LookupIP(ctx, "1.1.1.1")

		require.NoError(t, err)
		require.Equal(t, cloudflare, info)
	})

	t.Run("ok: undecodable entry is reloaded", func(t *testing.T) {
		provider := &mockProvider{}
		cache := &mockCache{}
		asnsrv := New(provider, WithCache(cache, settings))

		cache.On("Get", "asn:ip:1.1.1.1").Return([]byte("{broken"), true, nil)
		cache.On("Set", "asn:ip:1.1.1.1", mock.Anything, time.Hour).Return(nil)
		provider.On("LookupIP", "1.1.1.1").Return(cloudflare, nil)

		info, err := asnsrv.LookupIP(ctx, "1.1.1.1")

		require.NoError(t, err)
		require.Equal(t, cloudflare, info)
		provider.AssertCalled(t, "LookupIP", "1.1.1.1")
	})

	t.Run("ok: disabled cache is bypassed", func(t *testing.T) {
		provider := &mockProvider{}
		cache := &mockCache{}
		asnsrv := New(provider, WithCache(cache, CacheSettings{Enabled: false}))

		provider.On("LookupIP", "1.1.1.1").Return(cloudflare, nil)

		_, err := asnsrv.LookupIP(ctx, "1.1.1.1")

		require.NoError(t, err)
		cache.AssertNotCalled(t, "Get", mock.Anything)
	})
}

// slowProvider blocks lookups until release is closed or the call context ends.
type slowProvider struct {
	mockProvider
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (sp *slowProvider) LookupIP(ctx context.Context, _ string) (model.AsnInfo, error) {
	sp.once.Do(func() { close(sp.entered) })
	select {
	case <-sp.release:
		return cloudflare, nil
	case <-ctx.Done():
		return model.AsnInfo{}, ctx.Err()
	}
}

func TestLookupIP_SharedLoadOutlivesCanceledCaller(t *testing.T) {
	provider := &slowProvider{entered: make(chan struct{}), release: make(chan struct{})}
	cache := &mockCache{}
	asnsrv := New(provider, WithCache(cache, settings))

	gets := make(chan struct{}, 2)
	cache.On("Get", "asn:ip:1.1.1.1").Run(func(mock.Arguments) { gets <- struct{}{} }).Return(nil, false, nil)
	cache.On("Set", "asn:ip:1.1.1.1", mock.Anything, time.Hour).Return(nil)

	canceledCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := asnsrv.LookupIP(canceledCtx, "1.1.1.1")
		firstErr <- err
	}()
	<-gets
	<-provider.entered

	type result struct {
		info model.AsnInfo
		err  error
	}
	second := make(chan result, 1)
	go func() {
		info, err := asnsrv.LookupIP(context.Background(), "1.1.1.1")
		second <- result{info: info, err: err}
	}()
	<-gets
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(provider.release)
	res := <-second
	require.NoError(t, res.err)
	require.Equal(t, cloudflare, res.info)
}

func TestPrefixes(t *testing.T) {
	ctx := context.Background()

	t.Run("ok: cached prefixes decode", func(t *testing.T) {
		provider := &mockProvider{}
		cache := &mockCache{}
		asnsrv := New(provider, WithCache(cache, settings))

		raw, err := json.Marshal(cloudflarePrefixes())
		require.NoError(t, err)
		cache.On("Get", "asn:prefixes:13335").Return(raw, true, nil)

		prefixes, err := asnsrv.Prefixes(ctx, 13335)

		require.NoError(t, err)
		require.Equal(t, cloudflarePrefixes(), prefixes)
		provider.AssertNotCalled(t, "Prefixes", mock.Anything)
	})

	t.Run("err: provider failed", func(t *testing.T) {
		provider := &mockProvider{}
		asnsrv := New(provider)

		expErr := errors.New("rate limited")
		provider.On("Prefixes", 13335).Return(([]model.Prefix)(nil), expErr)

		prefixes, err := asnsrv.Prefixes(ctx, 13335)

		require.EqualError(t, err, fmt.Sprintf("%s AS%d: %v", errGetPrefixes, 13335, expErr))
		require.Nil(t, prefixes)
	})
}

func TestAsn(t *testing.T) {
	provider := &mockProvider{}
	asnsrv := New(provider)

	expResult := model.AsnResult{Info: google, Prefixes: googlePrefixes()}
	provider.On("Asn", 15169).Return(expResult, nil)

	res, err := asnsrv.Asn(context.Background(), 15169)

	require.NoError(t, err)
	require.Equal(t, expResult, res)
	require.True(t, res.ContainsIP("8.8.8.8"))
}

func TestIPBelongsToAsn(t *testing.T) {
	ctx := context.Background()
	provider := &mockProvider{}
	asnsrv := New(provider)
	provider.On("Prefixes", 13335).Return(cloudflarePrefixes(), nil)

	tests := []struct {
		ip  string
		exp bool
	}{
		{ip: "104.16.1.1", exp: true},
		{ip: "172.71.255.255", exp: true},
		{ip: "2606:4700::1111", exp: true},
		{ip: "8.8.8.8", exp: false},
		{ip: "not-an-ip", exp: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.ip, func(t *testing.T) {
			ok, err := asnsrv.IPBelongsToAsn(ctx, tc.ip, 13335)
			require.NoError(t, err)
			require.Equal(t, tc.exp, ok)
		})
	}
}

func TestIPBelongsToSameAsn(t *testing.T) {
	ctx := context.Background()

	t.Run("true: same owner", func(t *testing.T) {
		provider := &mockProvider{}
		asnsrv := New(provider)
		provider.On("LookupIP", "104.16.1.1").Return(cloudflare, nil)
		provider.On("Prefixes", 13335).Return(cloudflarePrefixes(), nil)

		ok, err := asnsrv.IPBelongsToSameAsn(ctx, "104.16.1.1", "172.64.0.10")

		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("false: other owner", func(t *testing.T) {
		provider := &mockProvider{}
		asnsrv := New(provider)
		provider.On("LookupIP", "104.16.1.1").Return(cloudflare, nil)
		provider.On("Prefixes", 13335).Return(cloudflarePrefixes(), nil)

		ok, err := asnsrv.IPBelongsToSameAsn(ctx, "104.16.1.1", "8.8.8.8")

		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("err: source lookup failed", func(t *testing.T) {
		provider := &mockProvider{}
		asnsrv := New(provider)
		expErr := errors.New("not found")
		provider.On("LookupIP", "10.0.0.1").Return(model.AsnInfo{}, expErr)

		ok, err := asnsrv.IPBelongsToSameAsn(ctx, "10.0.0.1", "8.8.8.8")

		require.ErrorIs(t, err, expErr)
		require.False(t, ok)
		provider.AssertNotCalled(t, "Prefixes", mock.Anything)
	})
}

func TestIPMatchesAnyAsn(t *testing.T) {
	ctx := context.Background()

	t.Run("ok: first match in argument order", func(t *testing.T) {
		provider := &mockProvider{}
		asnsrv := New(provider)
		provider.On("Prefixes", 15169).Return(googlePrefixes(), nil)
		provider.On("Prefixes", 13335).Return(cloudflarePrefixes(), nil)

		asn, ok, err := asnsrv.IPMatchesAnyAsn(ctx, "104.16.1.1", []int{15169, 13335})

		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, 13335, asn)
	})

	t.Run("ok: stops at first match", func(t *testing.T) {
		provider := &mockProvider{}
		asnsrv := New(provider)
		provider.On("Prefixes", 15169).Return(googlePrefixes(), nil)

		asn, ok, err := asnsrv.IPMatchesAnyAsn(ctx, "8.8.8.8", []int{15169, 13335})

		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, 15169, asn)
		provider.AssertNotCalled(t, "Prefixes", 13335)
	})

	t.Run("false: no match", func(t *testing.T) {
		provider := &mockProvider{}
		asnsrv := New(provider)
		provider.On("Prefixes", 15169).Return(googlePrefixes(), nil)

		asn, ok, err := asnsrv.IPMatchesAnyAsn(ctx, "1.2.3.4", []int{15169})

		require.NoError(t, err)
		require.False(t, ok)
		require.Zero(t, asn)
	})

	t.Run("false: empty list", func(t *testing.T) {
		asnsrv := New(&mockProvider{})

		_, ok, err := asnsrv.IPMatchesAnyAsn(ctx, "1.2.3.4", nil)

		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestBuildMatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("ok: union of asns", func(t *testing.T) {
		provider := &mockProvider{}
		asnsrv := New(provider, WithMatcherMode(matcher.ModeStrict))
		provider.On("Prefixes", 13335).Return(cloudflarePrefixes(), nil)
		provider.On("Prefixes", 15169).Return(googlePrefixes(), nil)

		m, err := asnsrv.BuildMatcher(ctx, 13335, 15169)

		require.NoError(t, err)
		require.Equal(t, matcher.ModeStrict, m.Mode())
		require.Equal(t, 5, m.Count())
		require.True(t, m.Contains("104.16.1.1"))
		require.True(t, m.Contains("8.8.8.8"))
		require.True(t, m.Contains("2606:4700::1"))
		require.False(t, m.Contains("1.2.3.4"))

		r, ok := m.Find("8.8.8.8")
		require.True(t, ok)
		require.Equal(t, 15169, r.ASN())
	})

	t.Run("err: one asn failed", func(t *testing.T) {
		provider := &mockProvider{}
		asnsrv := New(provider)
		expErr := errors.New("timeout")
		provider.On("Prefixes", 13335).Return(cloudflarePrefixes(), nil)
		provider.On("Prefixes", 15169).Return(([]model.Prefix)(nil), expErr)

		m, err := asnsrv.BuildMatcher(ctx, 13335, 15169)

		require.ErrorIs(t, err, expErr)
		require.ErrorContains(t, err, errBuildMatcher)
		require.Nil(t, m)
	})

	t.Run("ok: no asns", func(t *testing.T) {
		asnsrv := New(&mockProvider{})

		m, err := asnsrv.BuildMatcher(ctx)

		require.NoError(t, err)
		require.Zero(t, m.Count())
	})
}

func TestBatchCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("ok: order kept across chunks", func(t *testing.T) {
		provider := &mockProvider{}
		asnsrv := New(provider, WithChunkSize(2))
		provider.On("Prefixes", 13335).Return(cloudflarePrefixes(), nil)

		ips := []string{"104.16.1.1", "8.8.8.8", "bogus", "172.64.1.1", "2606:4700::1"}
		results, err := asnsrv.BatchCheck(ctx, ips, []int{13335})

		require.NoError(t, err)
		require.Len(t, results, len(ips))
		expMatched := []bool{true, false, false, true, true}
		for i, res := range results {
			require.Equal(t, ips[i], res.IP)
			require.Equal(t, expMatched[i], res.Matched, res.IP)
		}
		prefix, ok := results[3].Prefix()
		require.True(t, ok)
		require.Equal(t, "172.64.0.0/13", prefix)
	})

	t.Run("err: cancelled context", func(t *testing.T) {
		provider := &mockProvider{}
		asnsrv := New(provider, WithChunkSize(1))
		provider.On("Prefixes", 13335).Return(cloudflarePrefixes(), nil)

		cctx, cancel := context.WithCancel(ctx)
		m, err := asnsrv.BuildMatcher(cctx, 13335)
		require.NoError(t, err)
		require.NotNil(t, m)
		cancel()

		results, err := asnsrv.BatchCheck(cctx, []string{"104.16.1.1"}, nil)

		require.ErrorIs(t, err, context.Canceled)
		require.Nil(t, results)
	})
}

func TestFlush(t *testing.T) {
	ctx := context.Background()

	t.Run("ok: asn keys", func(t *testing.T) {
		cache := &mockCache{}
		asnsrv := New(&mockProvider{}, WithCache(cache, settings))
		cache.On("Delete", []string{"asn:prefixes:13335", "asn:asn:13335"}).Return(nil)

		require.NoError(t, asnsrv.FlushAsn(ctx, 13335))
		cache.AssertCalled(t, "Delete", []string{"asn:prefixes:13335", "asn:asn:13335"})
	})

	t.Run("err: ip key", func(t *testing.T) {
		cache := &mockCache{}
		asnsrv := New(&mockProvider{}, WithCache(cache, settings))
		expErr := errors.New("read only replica")
		cache.On("Delete", []string{"asn:ip:1.1.1.1"}).Return(expErr)

		err := asnsrv.FlushIP(ctx, "1.1.1.1")

		require.EqualError(t, err, fmt.Sprintf("%s %s: %v", errFlushCache, "1.1.1.1", expErr))
	})

	t.Run("ok: without cache", func(t *testing.T) {
		asnsrv := New(&mockProvider{})
		require.NoError(t, asnsrv.FlushAsn(ctx, 13335))
		require.NoError(t, asnsrv.FlushIP(ctx, "1.1.1.1"))
	})
}
