package sqlgen

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/ak7sky/asn-service/internal/core/matcher"
	"github.com/ak7sky/asn-service/internal/core/model"
	"go4.org/netipx"
	"gorm.io/gorm"
)

var ErrInvalidColumn = errors.New("invalid column name")

var errResolvePrefixes = "failed to resolve prefixes of"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Predicate is a WHERE fragment with positional '?' placeholders.
// An empty SQL string filters nothing.
type Predicate struct {
	SQL  string
	Args []any
}

var matchNothing = Predicate{SQL: "1 = 0"}

func (p Predicate) Empty() bool {
	return p.SQL == ""
}

// Scope applies the predicate to a gorm query.
func (p Predicate) Scope() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if p.Empty() {
			return db
		}
		return db.Where(p.SQL, p.Args...)
	}
}

// PrefixSource is satisfied by the ASN manager.
type PrefixSource interface {
	Prefixes(ctx context.Context, asn int) ([]model.Prefix, error)
}

// Generator renders address predicates for one SQL dialect.
type Generator struct {
	dialect Dialect
}

func New(dialect Dialect) Generator {
	return Generator{dialect: dialect}
}

func (g Generator) Dialect() Dialect {
	return g.dialect
}

// IPInRange matches rows whose column lies inside cidr.
func (g Generator) IPInRange(column, cidr string) (Predicate, error) {
	if err := checkColumn(column); err != nil {
		return Predicate{}, err
	}
	prefix, err := model.NewPrefix(cidr)
	if err != nil {
		return Predicate{}, err
	}
	if g.dialect.SupportsNativeInet() {
		return inetContained(column, cidr), nil
	}
	return g.between(column, prefix.ToRange(), false), nil
}

// IPInRanges matches rows inside any of cidrs. No cidrs match nothing.
func (g Generator) IPInRanges(column string, cidrs []string) (Predicate, error) {
	if err := checkColumn(column); err != nil {
		return Predicate{}, err
	}
	parts := make([]Predicate, 0, len(cidrs))
	for _, cidr := range cidrs {
		prefix, err := model.NewPrefix(cidr)
		if err != nil {
			return Predicate{}, err
		}
		if g.dialect.SupportsNativeInet() {
			parts = append(parts, inetContained(column, cidr))
			continue
		}
		parts = append(parts, g.between(column, prefix.ToRange(), false))
	}
	return join(parts, " OR ", matchNothing), nil
}

// IPInAsn matches rows announced by any of asns.
func (g Generator) IPInAsn(ctx context.Context, column string, src PrefixSource, asns ...int) (Predicate, error) {
	prefixes, err := collectPrefixes(ctx, src, asns)
	if err != nil {
		return Predicate{}, err
	}
	if len(prefixes) == 0 {
		if err = checkColumn(column); err != nil {
			return Predicate{}, err
		}
		return matchNothing, nil
	}
	cidrs := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		cidrs = append(cidrs, p.String())
	}
	return g.IPInRanges(column, cidrs)
}

// IPNotInAsn excludes rows announced by any of asns. No prefixes exclude nothing.
func (g Generator) IPNotInAsn(ctx context.Context, column string, src PrefixSource, asns ...int) (Predicate, error) {
	if err := checkColumn(column); err != nil {
		return Predicate{}, err
	}
	prefixes, err := collectPrefixes(ctx, src, asns)
	if err != nil {
		return Predicate{}, err
	}
	parts := make([]Predicate, 0, len(prefixes))
	for _, p := range prefixes {
		if g.dialect.SupportsNativeInet() {
			inet := inetContained(column, p.String())
			parts = append(parts, Predicate{SQL: "NOT (" + inet.SQL + ")", Args: inet.Args})
			continue
		}
		parts = append(parts, g.between(column, p.ToRange(), true))
	}
	return join(parts, " AND ", Predicate{}), nil
}

// IPInMatcher matches rows inside any range compiled into m.
func (g Generator) IPInMatcher(column string, m *matcher.Matcher) (Predicate, error) {
	if err := checkColumn(column); err != nil {
		return Predicate{}, err
	}
	ranges := append(m.V4Ranges(), m.V6Ranges()...)
	parts := make([]Predicate, 0, len(ranges))
	for _, r := range ranges {
		if !g.dialect.SupportsNativeInet() {
			parts = append(parts, g.between(column, r, false))
			continue
		}
		for _, cidr := range rangeCIDRs(r) {
			parts = append(parts, inetContained(column, cidr))
		}
	}
	return join(parts, " OR ", matchNothing), nil
}

// IPEquals compares addresses rather than their spelling where the dialect allows it.
func (g Generator) IPEquals(column, ip string) (Predicate, error) {
	if err := checkColumn(column); err != nil {
		return Predicate{}, err
	}
	addr, err := netip.ParseAddr(ip)
	switch {
	case g.dialect.SupportsNativeInet():
		return Predicate{SQL: fmt.Sprintf("CAST(%s AS inet) = ?::inet", column), Args: []any{ip}}, nil
	case err == nil && addr.Is4() && g.dialect.SupportsInetAton():
		return Predicate{SQL: fmt.Sprintf("INET_ATON(%s) = INET_ATON(?)", column), Args: []any{ip}}, nil
	case err == nil:
		return Predicate{SQL: column + " = ?", Args: []any{addr.String()}}, nil
	default:
		return Predicate{SQL: column + " = ?", Args: []any{ip}}, nil
	}
}

func (g Generator) between(column string, r model.IPRange, negate bool) Predicate {
	op := " BETWEEN ? AND ?"
	if negate {
		op = " NOT BETWEEN ? AND ?"
	}
	if r.IsIPv6() {
		return Predicate{SQL: column + op, Args: []any{r.StartAddress(), r.EndAddress()}}
	}

	start, _ := r.StartUint32()
	end, _ := r.EndUint32()
	expr := sqliteIPToInt(column)
	if g.dialect.SupportsInetAton() {
		expr = fmt.Sprintf("INET_ATON(%s)", column)
	}
	return Predicate{SQL: expr + op, Args: []any{start, end}}
}

func inetContained(column, cidr string) Predicate {
	return Predicate{SQL: fmt.Sprintf("CAST(%s AS inet) <<= ?::inet", column), Args: []any{cidr}}
}

// rangeCIDRs splits r into the minimal list of covering CIDR blocks.
func rangeCIDRs(r model.IPRange) []string {
	start, _ := netip.AddrFromSlice(r.Start())
	end, _ := netip.AddrFromSlice(r.End())
	prefixes := netipx.IPRangeFrom(start, end).Prefixes()
	cidrs := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		cidrs = append(cidrs, p.String())
	}
	return cidrs
}

// sqliteIPToInt converts a dotted-quad column to its integer value using only
// SUBSTR and INSTR.
func sqliteIPToInt(column string) string {
	rest1 := fmt.Sprintf("SUBSTR(%s, INSTR(%s, '.') + 1)", column, column)
	rest2 := fmt.Sprintf("SUBSTR(%s, INSTR(%s, '.') + 1)", rest1, rest1)
	rest3 := fmt.Sprintf("SUBSTR(%s, INSTR(%s, '.') + 1)", rest2, rest2)
	octet := func(s string) string {
		return fmt.Sprintf("CAST(SUBSTR(%s, 1, INSTR(%s, '.') - 1) AS INTEGER)", s, s)
	}
	return fmt.Sprintf("(%s * 16777216 + %s * 65536 + %s * 256 + CAST(%s AS INTEGER))",
		octet(column), octet(rest1), octet(rest2), rest3)
}

func join(parts []Predicate, sep string, whenEmpty Predicate) Predicate {
	switch len(parts) {
	case 0:
		return whenEmpty
	case 1:
		return parts[0]
	}
	sqls := make([]string, 0, len(parts))
	var args []any
	for _, p := range parts {
		sqls = append(sqls, p.SQL)
		args = append(args, p.Args...)
	}
	return Predicate{SQL: "(" + strings.Join(sqls, sep) + ")", Args: args}
}

func collectPrefixes(ctx context.Context, src PrefixSource, asns []int) ([]model.Prefix, error) {
	var all []model.Prefix
	for _, asn := range asns {
		prefixes, err := src.Prefixes(ctx, asn)
		if err != nil {
			return nil, fmt.Errorf("%s AS%d: %w", errResolvePrefixes, asn, err)
		}
		all = append(all, prefixes...)
	}
	return all, nil
}

func checkColumn(column string) error {
	if !identifier.MatchString(column) {
		return fmt.Errorf("%w: %q", ErrInvalidColumn, column)
	}
	return nil
}
