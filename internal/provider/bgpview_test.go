package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	bgpViewIPBody = `{"status":"ok","data":{"ip":"1.1.1.1","prefixes":[{"prefix":"1.1.1.0/24",
		"asn":{"asn":13335,"name":"CLOUDFLARENET","description":"Cloudflare, Inc.","country_code":"US"}}]}}`
	bgpViewPrefixesBody = `{"status":"ok","data":{
		"ipv4_prefixes":[
			{"prefix":"104.16.0.0/12","name":"CLOUDFLARENET","description":"Cloudflare, Inc.","country_code":"US"},
			{"prefix":"garbage"},
			{"name":"missing prefix"}
		],
		"ipv6_prefixes":[{"prefix":"2606:4700::/32","name":"CLOUDFLARENET","country_code":"US"}]}}`
	bgpViewAsnBody = `{"status":"ok","data":{"asn":13335,"name":"CLOUDFLARENET","description_short":"",
		"description_full":["Cloudflare, Inc.","San Francisco"],"country_code":"US",
		"rir_allocation":{"rir_name":"ARIN"}}}`
)

func TestBGPView_LookupIP(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/ip/1.1.1.1":  bgpViewIPBody,
		"/ip/10.0.0.1": `{"status":"ok","data":{"prefixes":[]}}`,
		"/ip/10.0.0.2": `{"status":"ok","data":{"prefixes":[{"prefix":"10.0.0.0/8","asn":null}]}}`,
	})
	p := NewBGPView(testConfig(srv.URL), testLogger())

	info, err := p.LookupIP(context.Background(), "1.1.1.1")
	require.NoError(t, err)
	require.Equal(t, 13335, info.ASN)
	require.Equal(t, "CLOUDFLARENET", info.Name)
	require.Equal(t, "Cloudflare, Inc.", info.Description)
	require.Equal(t, "US", info.Country)

	_, err = p.LookupIP(context.Background(), "10.0.0.1")
	require.ErrorIs(t, err, ErrIPNotFound)
	_, err = p.LookupIP(context.Background(), "10.0.0.2")
	require.ErrorIs(t, err, ErrIPNotFound)
}

func TestBGPView_Prefixes(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/asn/13335/prefixes": bgpViewPrefixesBody,
		"/asn/1/prefixes":     `{"status":"error","data":null}`,
	})
	p := NewBGPView(testConfig(srv.URL), testLogger())

	prefixes, err := p.Prefixes(context.Background(), 13335)
	require.NoError(t, err)
	require.Len(t, prefixes, 2)
	require.Equal(t, "104.16.0.0/12", prefixes[0].String())
	require.Equal(t, "CLOUDFLARENET", prefixes[0].Name())
	require.Equal(t, "US", prefixes[0].Country())
	require.Equal(t, 13335, prefixes[0].ASN())
	require.Equal(t, "2606:4700::/32", prefixes[1].String())
	require.True(t, prefixes[1].IsIPv6())

	_, err = p.Prefixes(context.Background(), 1)
	require.ErrorIs(t, err, ErrAsnNotFound)
}

func TestBGPView_Asn(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/asn/13335":          bgpViewAsnBody,
		"/asn/13335/prefixes": bgpViewPrefixesBody,
	})
	p := NewBGPView(testConfig(srv.URL), testLogger())

	res, err := p.Asn(context.Background(), 13335)
	require.NoError(t, err)
	require.Equal(t, 13335, res.Info.ASN)
	require.Equal(t, "Cloudflare, Inc. San Francisco", res.Info.Description)
	require.Equal(t, "ARIN", res.Info.RIR)
	require.Len(t, res.Prefixes, 2)

	_, err = p.Asn(context.Background(), 64512)
	require.ErrorIs(t, err, ErrRequestFailed)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, 404, reqErr.Status)
	require.Equal(t, srv.URL+"/asn/64512", reqErr.URL)
}

func TestFullDescription(t *testing.T) {
	require.Equal(t, "", fullDescription(nil))
	require.Equal(t, "one", fullDescription([]byte(`"one"`)))
	require.Equal(t, "a b", fullDescription([]byte(`["a","b"]`)))
	require.Equal(t, "", fullDescription([]byte(`42`)))
}
