package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/ak7sky/asn-service/internal/core/model"
	"github.com/ak7sky/asn-service/internal/logger"
)

const bgpViewURL = "https://api.bgpview.io"

// BGPView talks to the public bgpview.io REST API.
type BGPView struct {
	baseURL string
	http    *httpClient
	logger  logger.Logger
}

func NewBGPView(cfg Config, log logger.Logger) *BGPView {
	log = log.With("provider", "bgpview")
	return &BGPView{
		baseURL: baseURLOr(cfg.BaseURL, bgpViewURL),
		http:    newHTTPClient("bgpview", cfg, log),
		logger:  log,
	}
}

type bgpViewASN struct {
	ASN         int    `json:"asn"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CountryCode string `json:"country_code"`
}

type bgpViewIPResponse struct {
	Data *struct {
		Prefixes []struct {
			Prefix string      `json:"prefix"`
			ASN    *bgpViewASN `json:"asn"`
		} `json:"prefixes"`
	} `json:"data"`
}

type bgpViewPrefix struct {
	Prefix      string `json:"prefix"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CountryCode string `json:"country_code"`
}

type bgpViewPrefixesResponse struct {
	Data *struct {
		IPv4 []bgpViewPrefix `json:"ipv4_prefixes"`
		IPv6 []bgpViewPrefix `json:"ipv6_prefixes"`
	} `json:"data"`
}

type bgpViewAsnResponse struct {
	Data *struct {
		ASN              int             `json:"asn"`
		Name             string          `json:"name"`
		DescriptionShort string          `json:"description_short"`
		DescriptionFull  json.RawMessage `json:"description_full"`
		CountryCode      string          `json:"country_code"`
		RIRAllocation    *struct {
			RIRName string `json:"rir_name"`
		} `json:"rir_allocation"`
	} `json:"data"`
}

func (p *BGPView) Name() string { return "bgpview" }

func (p *BGPView) LookupIP(ctx context.Context, ip string) (model.AsnInfo, error) {
	var resp bgpViewIPResponse
	if err := p.http.getJSON(ctx, p.baseURL+"/ip/"+ip, nil, &resp); err != nil {
		return model.AsnInfo{}, err
	}
	if resp.Data == nil || len(resp.Data.Prefixes) == 0 {
		return model.AsnInfo{}, ipNotFound(ip)
	}

	asn := resp.Data.Prefixes[0].ASN
	if asn == nil || asn.ASN == 0 {
		return model.AsnInfo{}, ipNotFound(ip)
	}
	return model.AsnInfo{
		ASN:         asn.ASN,
		Name:        asn.Name,
		Description: asn.Description,
		Country:     asn.CountryCode,
	}, nil
}

func (p *BGPView) Prefixes(ctx context.Context, asn int) ([]model.Prefix, error) {
	var resp bgpViewPrefixesResponse
	if err := p.http.getJSON(ctx, fmt.Sprintf("%s/asn/%d/prefixes", p.baseURL, asn), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, asnNotFound(asn)
	}

	entries := slices.Concat(resp.Data.IPv4, resp.Data.IPv6)
	prefixes := make([]model.Prefix, 0, len(entries))
	for _, entry := range entries {
		if entry.Prefix == "" {
			continue
		}
		prefix, err := model.NewPrefix(entry.Prefix,
			model.WithName(entry.Name),
			model.WithDescription(entry.Description),
			model.WithCountry(entry.CountryCode),
			model.WithASN(asn))
		if err != nil {
			p.logger.Debug("skipping prefix of AS%d: %s", asn, err)
			continue
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}

func (p *BGPView) Asn(ctx context.Context, asn int) (model.AsnResult, error) {
	var resp bgpViewAsnResponse
	if err := p.http.getJSON(ctx, fmt.Sprintf("%s/asn/%d", p.baseURL, asn), nil, &resp); err != nil {
		return model.AsnResult{}, err
	}
	if resp.Data == nil {
		return model.AsnResult{}, asnNotFound(asn)
	}

	info := model.AsnInfo{
		ASN:         resp.Data.ASN,
		Name:        resp.Data.Name,
		Description: resp.Data.DescriptionShort,
		Country:     resp.Data.CountryCode,
	}
	if info.ASN == 0 {
		info.ASN = asn
	}
	if info.Description == "" {
		info.Description = fullDescription(resp.Data.DescriptionFull)
	}
	if resp.Data.RIRAllocation != nil {
		info.RIR = resp.Data.RIRAllocation.RIRName
	}

	prefixes, err := p.Prefixes(ctx, asn)
	if err != nil {
		return model.AsnResult{}, err
	}
	return model.AsnResult{Info: info, Prefixes: prefixes}, nil
}

// fullDescription accepts description_full as either a string or a list of lines.
func fullDescription(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var lines []string
	if json.Unmarshal(raw, &lines) == nil {
		return strings.Join(lines, " ")
	}
	return ""
}

func baseURLOr(override, def string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	return def
}
