package provider

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/ak7sky/asn-service/internal/core/model"
	"github.com/ak7sky/asn-service/internal/logger"
)

const (
	ipInfoLiteURL = "https://api.ipinfo.io/lite"
	ipInfoURL     = "https://ipinfo.io"
)

// IPinfo uses the ipinfo.io Lite API for address lookups and the ASN API
// for prefixes. Both require a token.
type IPinfo struct {
	liteURL string
	asnURL  string
	token   string
	http    *httpClient
	logger  logger.Logger
}

func NewIPinfo(cfg Config, log logger.Logger) *IPinfo {
	log = log.With("provider", "ipinfo")
	p := &IPinfo{
		liteURL: ipInfoLiteURL,
		asnURL:  ipInfoURL,
		token:   cfg.Token,
		http:    newHTTPClient("ipinfo", cfg, log),
		logger:  log,
	}
	if cfg.BaseURL != "" {
		base := strings.TrimRight(cfg.BaseURL, "/")
		p.liteURL = base + "/lite"
		p.asnURL = base
	}
	return p
}

type ipInfoLiteResponse struct {
	ASN         string `json:"asn"`
	ASName      string `json:"as_name"`
	CountryCode string `json:"country_code"`
}

type ipInfoNetblock struct {
	Netblock string `json:"netblock"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Country  string `json:"country"`
}

type ipInfoAsnResponse struct {
	ASN       string           `json:"asn"`
	Name      string           `json:"name"`
	Country   string           `json:"country"`
	Registry  string           `json:"registry"`
	Prefixes  []ipInfoNetblock `json:"prefixes"`
	Prefixes6 []ipInfoNetblock `json:"prefixes6"`
}

func (p *IPinfo) Name() string { return "ipinfo" }

func (p *IPinfo) LookupIP(ctx context.Context, ip string) (model.AsnInfo, error) {
	var resp ipInfoLiteResponse
	if err := p.http.getJSON(ctx, p.liteURL+"/"+ip, p.query(), &resp); err != nil {
		return model.AsnInfo{}, err
	}
	if resp.ASN == "" {
		return model.AsnInfo{}, ipNotFound(ip)
	}

	asn, err := model.ParseASN(resp.ASN)
	if err != nil {
		return model.AsnInfo{}, fmt.Errorf("%w: %s: %w", ErrIPNotFound, ip, err)
	}
	return model.AsnInfo{
		ASN:         asn,
		Name:        resp.ASName,
		Description: resp.ASName,
		Country:     resp.CountryCode,
	}, nil
}

func (p *IPinfo) Prefixes(ctx context.Context, asn int) ([]model.Prefix, error) {
	resp, err := p.asn(ctx, asn)
	if err != nil {
		return nil, err
	}
	if len(resp.Prefixes) == 0 && len(resp.Prefixes6) == 0 {
		return nil, asnNotFound(asn)
	}
	return p.netblocks(asn, resp), nil
}

func (p *IPinfo) Asn(ctx context.Context, asn int) (model.AsnResult, error) {
	resp, err := p.asn(ctx, asn)
	if err != nil {
		return model.AsnResult{}, err
	}
	if resp.ASN == "" && resp.Name == "" && len(resp.Prefixes) == 0 && len(resp.Prefixes6) == 0 {
		return model.AsnResult{}, asnNotFound(asn)
	}

	return model.AsnResult{
		Info: model.AsnInfo{
			ASN:         asn,
			Name:        resp.Name,
			Description: resp.Name,
			Country:     resp.Country,
			RIR:         resp.Registry,
		},
		Prefixes: p.netblocks(asn, resp),
	}, nil
}

func (p *IPinfo) asn(ctx context.Context, asn int) (ipInfoAsnResponse, error) {
	var resp ipInfoAsnResponse
	err := p.http.getJSON(ctx, fmt.Sprintf("%s/AS%d/json", p.asnURL, asn), p.query(), &resp)
	return resp, err
}

func (p *IPinfo) netblocks(asn int, resp ipInfoAsnResponse) []model.Prefix {
	entries := slices.Concat(resp.Prefixes, resp.Prefixes6)
	prefixes := make([]model.Prefix, 0, len(entries))
	for _, entry := range entries {
		if entry.Netblock == "" {
			continue
		}
		prefix, err := model.NewPrefix(entry.Netblock,
			model.WithName(entry.Name),
			model.WithDescription(entry.ID),
			model.WithCountry(entry.Country),
			model.WithASN(asn))
		if err != nil {
			p.logger.Debug("skipping netblock of AS%d: %s", asn, err)
			continue
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes
}

func (p *IPinfo) query() url.Values {
	if p.token == "" {
		return nil
	}
	return url.Values{"token": []string{p.token}}
}
