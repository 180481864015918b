package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/ak7sky/asn-service/internal/core/model"
	"github.com/ak7sky/asn-service/internal/logger"
	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"
)

var ErrNoDatabase = errors.New("geolite database path is not configured")

// GeoLite answers from a local GeoLite2-ASN database. Lookups are offline;
// Prefixes walks every network in the database.
type GeoLite struct {
	asnDB    *geoip2.Reader
	networks *maxminddb.Reader
	logger   logger.Logger
}

type geoLiteRecord struct {
	ASN          uint   `maxminddb:"autonomous_system_number"`
	Organization string `maxminddb:"autonomous_system_organization"`
}

func NewGeoLite(cfg Config, log logger.Logger) (*GeoLite, error) {
	if cfg.Database == "" {
		return nil, ErrNoDatabase
	}
	data, err := os.ReadFile(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to read geolite database: %w", err)
	}
	return NewGeoLiteFromBytes(data, log)
}

func NewGeoLiteFromBytes(data []byte, log logger.Logger) (*GeoLite, error) {
	asnDB, err := geoip2.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open geolite database: %w", err)
	}
	networks, err := maxminddb.FromBytes(data)
	if err != nil {
		_ = asnDB.Close()
		return nil, fmt.Errorf("failed to open geolite database: %w", err)
	}
	return &GeoLite{
		asnDB:    asnDB,
		networks: networks,
		logger:   log.With("provider", "geolite"),
	}, nil
}

func (p *GeoLite) Name() string { return "geolite" }

func (p *GeoLite) LookupIP(_ context.Context, ip string) (model.AsnInfo, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return model.AsnInfo{}, fmt.Errorf("%w: %w", ipNotFound(ip), model.ErrInvalidAddress)
	}
	record, err := p.asnDB.ASN(addr)
	if err != nil {
		return model.AsnInfo{}, fmt.Errorf("%w: %w", ipNotFound(ip), err)
	}
	if record.AutonomousSystemNumber == 0 {
		return model.AsnInfo{}, ipNotFound(ip)
	}
	return model.AsnInfo{
		ASN:         int(record.AutonomousSystemNumber),
		Name:        record.AutonomousSystemOrganization,
		Description: record.AutonomousSystemOrganization,
	}, nil
}

func (p *GeoLite) Prefixes(ctx context.Context, asn int) ([]model.Prefix, error) {
	prefixes, _, err := p.scan(ctx, asn)
	if err != nil {
		return nil, err
	}
	if len(prefixes) == 0 {
		return nil, asnNotFound(asn)
	}
	return prefixes, nil
}

func (p *GeoLite) Asn(ctx context.Context, asn int) (model.AsnResult, error) {
	prefixes, org, err := p.scan(ctx, asn)
	if err != nil {
		return model.AsnResult{}, err
	}
	if len(prefixes) == 0 {
		return model.AsnResult{}, asnNotFound(asn)
	}
	return model.AsnResult{
		Info:     model.AsnInfo{ASN: asn, Name: org, Description: org},
		Prefixes: prefixes,
	}, nil
}

func (p *GeoLite) scan(ctx context.Context, asn int) ([]model.Prefix, string, error) {
	var (
		prefixes []model.Prefix
		org      string
	)
	networks := p.networks.Networks(maxminddb.SkipAliasedNetworks)
	for i := 0; networks.Next(); i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, "", err
			}
		}
		var record geoLiteRecord
		subnet, err := networks.Network(&record)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read geolite network: %w", err)
		}
		if int(record.ASN) != asn {
			continue
		}
		org = record.Organization
		prefix, err := model.NewPrefix(subnet.String(), model.WithName(org), model.WithASN(asn))
		if err != nil {
			p.logger.Debug("skipping network of AS%d: %s", asn, err)
			continue
		}
		prefixes = append(prefixes, prefix)
	}
	if err := networks.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to read geolite networks: %w", err)
	}
	return prefixes, org, nil
}

func (p *GeoLite) Close() error {
	return errors.Join(p.asnDB.Close(), p.networks.Close())
}
