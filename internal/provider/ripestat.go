package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ak7sky/asn-service/internal/core/model"
	"github.com/ak7sky/asn-service/internal/logger"
)

const ripeStatURL = "https://stat.ripe.net/data"

// RIPEstat queries the RIPE NCC data API. It needs no credentials.
type RIPEstat struct {
	baseURL string
	http    *httpClient
	logger  logger.Logger
}

func NewRIPEstat(cfg Config, log logger.Logger) *RIPEstat {
	log = log.With("provider", "ripestat")
	return &RIPEstat{
		baseURL: baseURLOr(cfg.BaseURL, ripeStatURL),
		http:    newHTTPClient("ripestat", cfg, log),
		logger:  log,
	}
}

// asnNumber decodes an ASN given either as a JSON number or a string.
type asnNumber int

func (n *asnNumber) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("invalid asn %s: %w", data, err)
	}
	*n = asnNumber(v)
	return nil
}

type ripeNetworkInfoResponse struct {
	Data *struct {
		Asns []asnNumber `json:"asns"`
	} `json:"data"`
}

type ripeOverviewResponse struct {
	Data *struct {
		Holder          string `json:"holder"`
		ResourceCountry string `json:"resource_country"`
		Block           *struct {
			Resource string `json:"resource"`
		} `json:"block"`
	} `json:"data"`
}

type ripeAnnouncedResponse struct {
	Data *struct {
		Prefixes []struct {
			Prefix string `json:"prefix"`
		} `json:"prefixes"`
	} `json:"data"`
}

func (p *RIPEstat) Name() string { return "ripestat" }

func (p *RIPEstat) LookupIP(ctx context.Context, ip string) (model.AsnInfo, error) {
	var resp ripeNetworkInfoResponse
	if err := p.http.getJSON(ctx, p.baseURL+"/network-info/data.json", resource(ip), &resp); err != nil {
		return model.AsnInfo{}, err
	}
	if resp.Data == nil || len(resp.Data.Asns) == 0 {
		return model.AsnInfo{}, ipNotFound(ip)
	}

	asn := int(resp.Data.Asns[0])
	overview, err := p.overview(ctx, asn)
	if err != nil {
		return model.AsnInfo{}, err
	}

	info := model.AsnInfo{ASN: asn}
	if overview.Data != nil {
		info.Name = overview.Data.Holder
		info.Description = overview.Data.Holder
		info.Country = overview.Data.ResourceCountry
		if overview.Data.Block != nil {
			info.RIR = overview.Data.Block.Resource
		}
	}
	return info, nil
}

func (p *RIPEstat) Prefixes(ctx context.Context, asn int) ([]model.Prefix, error) {
	var resp ripeAnnouncedResponse
	if err := p.http.getJSON(ctx, p.baseURL+"/announced-prefixes/data.json", resource(asnResource(asn)), &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || len(resp.Data.Prefixes) == 0 {
		return nil, asnNotFound(asn)
	}

	prefixes := make([]model.Prefix, 0, len(resp.Data.Prefixes))
	for _, entry := range resp.Data.Prefixes {
		if entry.Prefix == "" {
			continue
		}
		prefix, err := model.NewPrefix(entry.Prefix, model.WithASN(asn))
		if err != nil {
			p.logger.Debug("skipping prefix of AS%d: %s", asn, err)
			continue
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}

func (p *RIPEstat) Asn(ctx context.Context, asn int) (model.AsnResult, error) {
	overview, err := p.overview(ctx, asn)
	if err != nil {
		return model.AsnResult{}, err
	}
	if overview.Data == nil {
		return model.AsnResult{}, asnNotFound(asn)
	}

	prefixes, err := p.Prefixes(ctx, asn)
	if err != nil {
		return model.AsnResult{}, err
	}
	return model.AsnResult{
		Info: model.AsnInfo{
			ASN:         asn,
			Name:        overview.Data.Holder,
			Description: overview.Data.Holder,
			Country:     overview.Data.ResourceCountry,
		},
		Prefixes: prefixes,
	}, nil
}

func (p *RIPEstat) overview(ctx context.Context, asn int) (ripeOverviewResponse, error) {
	var resp ripeOverviewResponse
	err := p.http.getJSON(ctx, p.baseURL+"/as-overview/data.json", resource(asnResource(asn)), &resp)
	return resp, err
}

func resource(value string) url.Values {
	return url.Values{"resource": []string{value}}
}

func asnResource(asn int) string {
	return "AS" + strconv.Itoa(asn)
}

var _ json.Unmarshaler = (*asnNumber)(nil)
