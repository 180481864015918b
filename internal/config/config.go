package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported config format")
	ErrInvalidConfig     = errors.New("invalid config")
)

var (
	errLoadConfig  = "failed to load config"
	errParseConfig = "failed to parse config"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	RecordA    = "A"
	RecordAAAA = "AAAA"

	envPrefix = "ASN_"
)

type Config struct {
	Provider  string          `koanf:"provider"`
	Providers ProvidersConfig `koanf:"providers"`
	Cache     CacheConfig     `koanf:"cache"`
	HTTP      HTTPConfig      `koanf:"http"`
	DNS       DNSConfig       `koanf:"dns"`
	Batch     BatchConfig     `koanf:"batch"`
	Matcher   MatcherConfig   `koanf:"matcher"`
	GRPC      GRPCConfig      `koanf:"grpc"`
	Log       LogConfig       `koanf:"log"`
}

type ProvidersConfig struct {
	IPInfo  IPInfoConfig  `koanf:"ipinfo"`
	GeoLite GeoLiteConfig `koanf:"geolite"`
}

type IPInfoConfig struct {
	Token string `koanf:"token"`
}

type GeoLiteConfig struct {
	Database string `koanf:"database"`
}

type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	Store   string        `koanf:"store"`
	TTL     time.Duration `koanf:"ttl"`
	Prefix  string        `koanf:"prefix"`
	Size    int           `koanf:"size"`
	Redis   RedisConfig   `koanf:"redis"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type HTTPConfig struct {
	Timeout         time.Duration `koanf:"timeout"`
	Retries         uint          `koanf:"retries"`
	RetryDelay      time.Duration `koanf:"retry_delay"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

type DNSConfig struct {
	RecordType string        `koanf:"record_type"`
	CacheTTL   time.Duration `koanf:"cache_ttl"`
}

type BatchConfig struct {
	ChunkSize int `koanf:"chunk_size"`
}

// MatcherConfig describes the matcher served over gRPC.
type MatcherConfig struct {
	Mode   string   `koanf:"mode"`
	Asns   []int    `koanf:"asns"`
	Ranges []string `koanf:"ranges"`
}

type GRPCConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

func Default() Config {
	return Config{
		Provider: "bgpview",
		Cache: CacheConfig{
			Enabled: true,
			Store:   StoreMemory,
			TTL:     24 * time.Hour,
			Prefix:  "asn:",
			Size:    10_000,
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		HTTP: HTTPConfig{
			Timeout:         15 * time.Second,
			Retries:         3,
			RetryDelay:      500 * time.Millisecond,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		DNS:     DNSConfig{RecordType: RecordA, CacheTTL: time.Hour},
		Batch:   BatchConfig{ChunkSize: 1000},
		Matcher: MatcherConfig{Mode: "bounded"},
		GRPC:    GRPCConfig{Addr: "localhost:50051", ShutdownTimeout: 10 * time.Second},
		Log:     LogConfig{Level: "info"},
	}
}

type envBinding struct {
	key string
	// unit scales plain integer values of duration keys.
	unit time.Duration
	// list splits comma separated values.
	list bool
}

var envBindings = map[string]envBinding{
	"ASN_PROVIDER":           {key: "provider"},
	"ASN_IPINFO_TOKEN":       {key: "providers.ipinfo.token"},
	"ASN_GEOLITE_DATABASE":   {key: "providers.geolite.database"},
	"ASN_CACHE_ENABLED":      {key: "cache.enabled"},
	"ASN_CACHE_STORE":        {key: "cache.store"},
	"ASN_CACHE_TTL":          {key: "cache.ttl", unit: time.Second},
	"ASN_CACHE_PREFIX":       {key: "cache.prefix"},
	"ASN_CACHE_SIZE":         {key: "cache.size"},
	"ASN_REDIS_ADDR":         {key: "cache.redis.addr"},
	"ASN_REDIS_PASSWORD":     {key: "cache.redis.password"},
	"ASN_REDIS_DB":           {key: "cache.redis.db"},
	"ASN_HTTP_TIMEOUT":       {key: "http.timeout", unit: time.Second},
	"ASN_HTTP_RETRIES":       {key: "http.retries"},
	"ASN_HTTP_RETRY_DELAY":   {key: "http.retry_delay", unit: time.Millisecond},
	"ASN_HTTP_BREAKER_FAILS": {key: "http.breaker_failures"},
	"ASN_DNS_RECORD_TYPE":    {key: "dns.record_type"},
	"ASN_DNS_CACHE_TTL":      {key: "dns.cache_ttl", unit: time.Second},
	"ASN_BATCH_CHUNK_SIZE":   {key: "batch.chunk_size"},
	"ASN_MATCHER_MODE":       {key: "matcher.mode"},
	"ASN_MATCHER_ASNS":       {key: "matcher.asns", list: true},
	"ASN_MATCHER_RANGES":     {key: "matcher.ranges", list: true},
	"ASN_GRPC_ADDR":          {key: "grpc.addr"},
	"ASN_LOG_LEVEL":          {key: "log.level"},
}

// Load reads the optional config file at path, applies ASN_* environment
// overrides (after loading envFiles, if present) and validates the result.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	var data []byte
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("%s: %w", errLoadConfig, err)
		}
	}
	return Parse(data, filepath.Ext(path), os.Environ)
}

// Parse builds a Config from raw file content of the given extension and the
// KEY=value pairs returned by environ.
func Parse(data []byte, ext string, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if len(data) > 0 {
		parser, err := parserFor(ext)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return nil, fmt.Errorf("%s: %w", errParseConfig, err)
		}
	}

	if environ != nil {
		if err := loadEnv(k, environ); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%s: %w", errParseConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Provider) == "" {
		errs = append(errs, errors.New("provider is empty"))
	}
	if c.Cache.Store != StoreMemory && c.Cache.Store != StoreRedis {
		errs = append(errs, fmt.Errorf("cache.store must be %q or %q, got %q", StoreMemory, StoreRedis, c.Cache.Store))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl is negative"))
	}
	if c.DNS.RecordType != RecordA && c.DNS.RecordType != RecordAAAA {
		errs = append(errs, fmt.Errorf("dns.record_type must be %q or %q, got %q", RecordA, RecordAAAA, c.DNS.RecordType))
	}
	if c.Batch.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("batch.chunk_size must be positive, got %d", c.Batch.ChunkSize))
	}
	if c.Matcher.Mode != "bounded" && c.Matcher.Mode != "strict" {
		errs = append(errs, fmt.Errorf("matcher.mode must be bounded or strict, got %q", c.Matcher.Mode))
	}
	for _, asn := range c.Matcher.Asns {
		if asn <= 0 {
			errs = append(errs, fmt.Errorf("matcher.asns: invalid asn %d", asn))
		}
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func parserFor(ext string) (koanf.Parser, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func loadEnv(k *koanf.Koanf, environ func() []string) error {
	var errs []error
	provider := env.Provider(".", env.Opt{
		Prefix:      envPrefix,
		EnvironFunc: environ,
		TransformFunc: func(name, value string) (string, any) {
			binding, found := envBindings[name]
			if !found || value == "" {
				return "", nil
			}
			converted, err := binding.convert(value)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", name, value, err))
				return "", nil
			}
			return binding.key, converted
		},
	})
	if err := k.Load(provider, nil); err != nil {
		return fmt.Errorf("%s: %w", errParseConfig, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", errParseConfig, errors.Join(errs...))
	}
	return nil
}

func (b envBinding) convert(value string) (any, error) {
	switch {
	case b.list:
		items := make([]string, 0, strings.Count(value, ",")+1)
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	case b.unit != 0:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(n) * b.unit, nil
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, errors.New("not a duration")
		}
		return d, nil
	default:
		return value, nil
	}
}

func loadEnvFiles(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: env file %s: %w", errLoadConfig, file, err)
		}
	}
	return nil
}
