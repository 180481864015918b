package main

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	app "github.com/ak7sky/asn-service/internal"
	"github.com/ak7sky/asn-service/internal/config"
	"github.com/ak7sky/asn-service/internal/core/matcher"
	"github.com/ak7sky/asn-service/internal/core/model"
	"github.com/ak7sky/asn-service/internal/logger"
	"github.com/urfave/cli/v3"
	"go4.org/netipx"
)

// exitError carries a non-zero exit code for a command that already printed its result.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

var notBelonging = &exitError{code: 1}

type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func createCommands(opts []app.Option) []*cli.Command {
	return []*cli.Command{
		createLookupCommand(opts),
		createPrefixesCommand(opts),
		createCheckCommand(opts),
		createDomainCommand(opts),
		createMatchCommand(opts),
		createServeCommand(opts),
	}
}

func createLookupCommand(opts []app.Option) *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "print the autonomous system announcing an ip address",
		ArgsUsage: "<ip>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ip := cmd.Args().First()
			if cmd.Args().Len() != 1 || !validIP(ip) {
				return usagef("lookup expects one ip address, got %q", cmd.Args().Slice())
			}
			a, err := loadApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			info, err := a.Manager.LookupIP(ctx, ip)
			if err != nil {
				return err
			}
			return printAsnInfo(cmd.Root().Writer, info)
		},
	}
}

func createPrefixesCommand(opts []app.Option) *cli.Command {
	return &cli.Command{
		Name:      "prefixes",
		Usage:     "list the prefixes announced by an asn",
		ArgsUsage: "<asn>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "ipv4-only", Usage: "only ipv4 prefixes"},
			&cli.BoolFlag{Name: "ipv6-only", Usage: "only ipv6 prefixes"},
			&cli.BoolFlag{Name: "count", Usage: "print counts instead of prefixes"},
			&cli.BoolFlag{Name: "merge", Usage: "collapse overlapping and adjacent prefixes"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return usagef("prefixes expects one asn")
			}
			asn, err := model.ParseASN(cmd.Args().First())
			if err != nil {
				return &usageError{msg: err.Error()}
			}
			if cmd.Bool("ipv4-only") && cmd.Bool("ipv6-only") {
				return usagef("--ipv4-only and --ipv6-only are mutually exclusive")
			}
			a, err := loadApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			prefixes, err := a.Manager.Prefixes(ctx, asn)
			if err != nil {
				return err
			}
			switch {
			case cmd.Bool("ipv4-only"):
				prefixes = model.FilterFamily(prefixes, model.IPv4)
			case cmd.Bool("ipv6-only"):
				prefixes = model.FilterFamily(prefixes, model.IPv6)
			}

			out := cmd.Root().Writer
			if cmd.Bool("count") {
				v4 := model.FilterFamily(prefixes, model.IPv4)
				_, err = fmt.Fprintf(out, "AS%d announces %d prefixes (%d IPv4, %d IPv6), %d IPv4 addresses\n",
					asn, len(prefixes), len(v4), len(prefixes)-len(v4), countV4Addresses(v4))
				return err
			}
			texts, err := prefixTexts(prefixes, cmd.Bool("merge"))
			if err != nil {
				return err
			}
			for _, text := range texts {
				if _, err = fmt.Fprintln(out, text); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func createCheckCommand(opts []app.Option) *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "test whether an asn announces an ip address",
		ArgsUsage: "<ip> <asn>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return usagef("check expects an ip address and an asn")
			}
			ip := cmd.Args().Get(0)
			if !validIP(ip) {
				return usagef("invalid ip address %q", ip)
			}
			asn, err := model.ParseASN(cmd.Args().Get(1))
			if err != nil {
				return &usageError{msg: err.Error()}
			}
			a, err := loadApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			belongs, err := a.Manager.IPBelongsToAsn(ctx, ip, asn)
			if err != nil {
				return err
			}
			return report(cmd.Root().Writer, belongs, "%s belongs to AS%d", "%s does not belong to AS%d", ip, asn)
		},
	}
}

func createDomainCommand(opts []app.Option) *cli.Command {
	return &cli.Command{
		Name:      "domain",
		Usage:     "resolve a domain and print the asn of its first address",
		ArgsUsage: "<domain>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "check-asn", Usage: "test whether the domain resolves into this asn"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return usagef("domain expects one domain name")
			}
			domain := cmd.Args().First()
			a, err := loadApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.Root().Writer
			ips, err := a.Resolver.ResolveIPs(ctx, domain)
			if err != nil {
				return err
			}
			if _, err = fmt.Fprintf(out, "%s resolves to %s\n", domain, strings.Join(ips, ", ")); err != nil {
				return err
			}

			if text := cmd.String("check-asn"); text != "" {
				asn, err := model.ParseASN(text)
				if err != nil {
					return &usageError{msg: err.Error()}
				}
				belongs, err := a.Resolver.DomainBelongsToAsn(ctx, domain, asn)
				if err != nil {
					return err
				}
				return report(out, belongs, "%s resolves into AS%d", "%s does not resolve into AS%d", domain, asn)
			}

			info, err := a.Manager.LookupIP(ctx, ips[0])
			if err != nil {
				return err
			}
			return printAsnInfo(out, info)
		},
	}
}

func createMatchCommand(opts []app.Option) *cli.Command {
	return &cli.Command{
		Name:      "match",
		Usage:     "match ip addresses against asns and ranges; reads stdin when no ips are given",
		ArgsUsage: "[ips...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "asn", Usage: "asn whose prefixes are matched (repeatable)"},
			&cli.StringSliceFlag{Name: "range", Usage: "cidr, ip or start-end range (repeatable)"},
			&cli.BoolFlag{Name: "strict", Usage: "find ranges nested under wider ones at any depth"},
			&cli.BoolFlag{Name: "matched-only", Usage: "print matched addresses only"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			asns := make([]int, 0, len(cmd.StringSlice("asn")))
			for _, text := range cmd.StringSlice("asn") {
				asn, err := model.ParseASN(text)
				if err != nil {
					return &usageError{msg: err.Error()}
				}
				asns = append(asns, asn)
			}
			if len(asns) == 0 && len(cmd.StringSlice("range")) == 0 {
				return usagef("match needs at least one --asn or --range")
			}

			ips := cmd.Args().Slice()
			if len(ips) == 0 {
				var err error
				if ips, err = readLines(cmd.Root().Reader); err != nil {
					return err
				}
			}

			a, err := loadApp(ctx, cmd, opts, func(cfg *config.Config) {
				if cmd.Bool("strict") {
					cfg.Matcher.Mode = matcher.ModeStrict.String()
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			compiled, err := a.Manager.BuildMatcher(ctx, asns...)
			if err != nil {
				return err
			}
			b := compiled.Builder()
			for _, text := range cmd.StringSlice("range") {
				if err = b.AddText(text); err != nil {
					return &usageError{msg: err.Error()}
				}
			}

			results := b.Compile().MatchBatch(ips)
			matched, err := printMatches(cmd.Root().Writer, results, cmd.Bool("matched-only"))
			if err != nil {
				return err
			}
			if matched == 0 {
				return notBelonging
			}
			return nil
		},
	}
}

func createServeCommand(opts []app.Option) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the configured matcher over grpc",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return app.Run(ctx, cfg, opts...)
		},
	}
}

func loadConfig(cmd *cli.Command, overrides ...func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"), cmd.String("env-file"))
	if err != nil {
		return nil, err
	}
	if p := cmd.String("provider"); p != "" {
		cfg.Provider = p
	}
	for _, override := range overrides {
		override(cfg)
	}
	return cfg, nil
}

func loadApp(ctx context.Context, cmd *cli.Command, opts []app.Option, overrides ...func(*config.Config)) (*app.App, error) {
	cfg, err := loadConfig(cmd, overrides...)
	if err != nil {
		return nil, err
	}
	log := logger.NewLoggerTo(cmd.Root().ErrWriter, cmd.String("log-level"))
	return app.New(ctx, cfg, log, opts...)
}

func printAsnInfo(w io.Writer, info model.AsnInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "ASN:\tAS%d\n", info.ASN)
	fmt.Fprintf(tw, "Name:\t%s\n", info.Name)
	fmt.Fprintf(tw, "Description:\t%s\n", info.Description)
	fmt.Fprintf(tw, "Country:\t%s\n", orDash(info.Country))
	fmt.Fprintf(tw, "RIR:\t%s\n", orDash(info.RIR))
	return tw.Flush()
}

func printMatches(w io.Writer, results []model.MatchResult, matchedOnly bool) (int, error) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	matched := 0
	for _, res := range results {
		if res.Matched {
			matched++
		} else if matchedOnly {
			continue
		}
		prefix, _ := res.Prefix()
		label, _ := res.Label()
		asn := "-"
		if n, ok := res.ASN(); ok {
			asn = fmt.Sprintf("AS%d", n)
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n", res.IP, res.Matched, orDash(prefix), asn, orDash(label))
	}
	return matched, tw.Flush()
}

// prefixTexts renders prefixes, optionally collapsed into the minimal covering set.
func prefixTexts(prefixes []model.Prefix, merge bool) ([]string, error) {
	texts := make([]string, 0, len(prefixes))
	if !merge {
		for _, p := range prefixes {
			texts = append(texts, p.String())
		}
		return texts, nil
	}

	var b netipx.IPSetBuilder
	for _, p := range prefixes {
		parsed, err := netip.ParsePrefix(p.String())
		if err != nil {
			continue
		}
		b.AddPrefix(parsed.Masked())
	}
	set, err := b.IPSet()
	if err != nil {
		return nil, err
	}
	for _, p := range set.Prefixes() {
		texts = append(texts, p.String())
	}
	return texts, nil
}

// countV4Addresses sums the sizes of the IPv4 blocks; a block nested in
// another one is counted once.
func countV4Addresses(prefixes []model.Prefix) uint64 {
	nets := make([]model.Net4, 0, len(prefixes))
	for _, p := range prefixes {
		if net, err := p.Net4(); err == nil {
			nets = append(nets, net)
		}
	}
	slices.SortFunc(nets, func(a, b model.Net4) int {
		if c := cmp.Compare(a.First(), b.First()); c != 0 {
			return c
		}
		return cmp.Compare(a.MaskLen, b.MaskLen)
	})

	var (
		total    uint64
		covering model.Net4
	)
	for i, net := range nets {
		if i > 0 && covering.Contains(net.First()) {
			continue
		}
		covering = net
		total += uint64(net.Last()-net.First()) + 1
	}
	return total
}

func report(w io.Writer, ok bool, yes, no string, args ...any) error {
	if ok {
		_, err := fmt.Fprintf(w, yes+"\n", args...)
		return err
	}
	if _, err := fmt.Fprintf(w, no+"\n", args...); err != nil {
		return err
	}
	return notBelonging
}

func readLines(r io.Reader) ([]string, error) {
	if r == nil {
		return nil, nil
	}
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func validIP(ip string) bool {
	_, err := model.ParseAddress(ip)
	return err == nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// setupSignalHandler cancels on the first signal and exits on the second.
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
