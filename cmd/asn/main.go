// asn looks up autonomous systems and matches addresses against their prefixes.
//
// Usage:
//
//	asn [global options] <command> [arguments]
//
// Commands:
//
//	lookup <ip>                  print the ASN announcing ip
//	prefixes <asn>               list the prefixes announced by asn
//	check <ip> <asn>             test whether asn announces ip
//	domain <domain>              resolve domain and print the owner of its first address
//	match [ips...]               match ips (or stdin lines) against ASNs and ranges
//	serve                        run the gRPC MatchService
//
// Exit codes:
//
//	0: success, or the address belongs
//	1: failure, or the address does not belong
//	2: usage error
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	app "github.com/ak7sky/asn-service/internal"
	"github.com/urfave/cli/v3"
)

var Version = "0.1.0-dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	os.Exit(run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func createApp(opts ...app.Option) *cli.Command {
	root := &cli.Command{
		Name:    "asn",
		Usage:   "look up autonomous systems and match ip addresses against their prefixes",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a yaml or json config file",
				Sources: cli.EnvVars("ASN_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file with ASN_* overrides",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "override the configured provider (bgpview, ripestat, ipinfo, geolite)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level written to stderr",
				Value: "error",
			},
		},
		Commands: createCommands(opts),
		ExitErrHandler: func(_ context.Context, cmd *cli.Command, err error) {
			if coder, ok := err.(cli.ExitCoder); ok && coder.Error() != "" {
				fmt.Fprintln(cmd.Root().ErrWriter, err)
			}
		},
	}
	setUsageErrorHandler(root)
	return root
}

func setUsageErrorHandler(cmd *cli.Command) {
	cmd.OnUsageError = func(_ context.Context, _ *cli.Command, err error, _ bool) error {
		return &usageError{msg: err.Error()}
	}
	for _, sub := range cmd.Commands {
		setUsageErrorHandler(sub)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, opts ...app.Option) int {
	root := createApp(opts...)
	root.Reader = stdin
	root.Writer = stdout
	root.ErrWriter = stderr

	err := root.Run(ctx, args)
	if err == nil {
		return 0
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(stderr, "usage error: %v\n", usageErr)
		return 2
	}
	if isCLIUsageError(err) {
		fmt.Fprintf(stderr, "usage error: %v\n", err)
		return 2
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return 1
}

func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{
		"flag provided but not defined",
		"No help topic for",
		"Required flag",
		"invalid value",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
