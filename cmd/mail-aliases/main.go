package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/edvin/mailaliases/internal/config"
	"github.com/edvin/mailaliases/internal/logging"
	"github.com/edvin/mailaliases/internal/plesk"
)

const programDescription = "Manage e-mail aliases via Plesk"

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type options struct {
	cfg     *config.Config
	account string
	site    string
	list    bool
	add     string
	remove  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs, flags := newFlagSet(stderr)
	opts, err := parseArgs(fs, flags, args)
	if err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			return exitOK
		case errors.Is(err, errFlagParse):
			// The flag package has already reported the error.
		default:
			fmt.Fprintf(stderr, "Error: %v\n", err)
			fs.Usage()
		}
		return exitUsage
	}

	logger := logging.NewLogger(stderr, opts.cfg)
	if err := execute(ctx, opts, stdout, logger); err != nil {
		logger.Debug().Err(err).Msg("run failed")
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	return exitOK
}

var errFlagParse = errors.New("invalid flags")

type cliFlags struct {
	user        *string
	host        *string
	passwordEnv *string
	mailbox     *string
	list        *bool
	add         *string
	remove      *string
	port        *int
	caCert      *string
	profile     *string
	logLevel    *string
}

func newFlagSet(output io.Writer) (*flag.FlagSet, *cliFlags) {
	fs := flag.NewFlagSet("mail-aliases", flag.ContinueOnError)
	fs.SetOutput(output)
	f := &cliFlags{
		user:        fs.String("U", config.DefaultUser, "User for API access"),
		host:        fs.String("H", "", "API endpoint host (required)"),
		passwordEnv: fs.String("P", "", "Environment variable that stores the API password (required)"),
		mailbox:     fs.String("M", "", "Mail account in the form [account]@[domain] (required)"),
		list:        fs.Bool("L", false, "List mail aliases"),
		add:         fs.String("A", "", "Add the new alias"),
		remove:      fs.String("R", "", "Remove the alias"),
		port:        fs.Int("port", config.DefaultPort, "API endpoint port"),
		caCert:      fs.String("cacert", "", "PEM file with the CA certificates to trust instead of the system pool"),
		profile:     fs.String("c", "", "YAML connection profile (host, port, user, password_env, ca_cert, log_level)"),
		logLevel:    fs.String("log-level", config.DefaultLogLevel, "Log level (trace, debug, info, warn, error, disabled)"),
	}
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `%s

Usage:
  mail-aliases -H host -P PASSWORD_ENV -M account@domain [-L] [-A alias] [-R alias]

At least one of -L, -A or -R is required. When combined they run in the
order list, add, remove.

Flags:
`, programDescription)
		fs.PrintDefaults()
	}
	return fs, f
}

// parseArgs resolves the options with the precedence defaults < profile
// file < flags given on the command line.
func parseArgs(fs *flag.FlagSet, f *cliFlags, args []string) (*options, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errFlagParse, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	cfg := config.Default()
	if *f.profile != "" {
		if err := cfg.LoadFile(*f.profile); err != nil {
			return nil, err
		}
	}
	if set["U"] {
		cfg.User = *f.user
	}
	if set["H"] {
		cfg.Host = *f.host
	}
	if set["P"] {
		cfg.PasswordEnv = *f.passwordEnv
	}
	if set["port"] {
		cfg.Port = *f.port
	}
	if set["cacert"] {
		cfg.CACert = *f.caCert
	}
	if set["log-level"] {
		cfg.LogLevel = *f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !*f.list && !set["A"] && !set["R"] {
		return nil, errors.New("either -L, -A or -R is required")
	}
	if set["A"] && *f.add == "" {
		return nil, errors.New("-A requires a non-empty alias")
	}
	if set["R"] && *f.remove == "" {
		return nil, errors.New("-R requires a non-empty alias")
	}
	if *f.mailbox == "" {
		return nil, errors.New("-M is required")
	}
	account, site, err := splitMailbox(*f.mailbox)
	if err != nil {
		return nil, err
	}
	for _, v := range []string{account, site, *f.add, *f.remove} {
		if err := plesk.CheckText(v); err != nil {
			return nil, err
		}
	}

	return &options{
		cfg:     cfg,
		account: account,
		site:    site,
		list:    *f.list,
		add:     *f.add,
		remove:  *f.remove,
	}, nil
}

func splitMailbox(s string) (string, string, error) {
	parts := strings.Split(s, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("-M argument must be passed in the form [account]@[domain], got %q", s)
	}
	return parts[0], parts[1], nil
}

func execute(ctx context.Context, opts *options, stdout io.Writer, logger zerolog.Logger) error {
	password, err := opts.cfg.Password()
	if err != nil {
		return err
	}
	tlsConfig, err := opts.cfg.TLS()
	if err != nil {
		return err
	}

	client, err := plesk.NewClient(plesk.Config{
		Host: opts.cfg.Host,
		Port: opts.cfg.Port,
		Auth: plesk.LoginPassword{Login: opts.cfg.User, Password: password},
		TLS:  tlsConfig,
	}, logger)
	if err != nil {
		return err
	}

	mgr, err := plesk.NewAliasManager(ctx, client, opts.site, logger)
	if err != nil {
		return err
	}

	if opts.list {
		aliases, err := mgr.ListAliases(ctx, opts.account)
		if err != nil {
			return fmt.Errorf("list aliases of %s: %w", opts.account, err)
		}
		fmt.Fprintln(stdout, "aliases:")
		for _, alias := range aliases {
			fmt.Fprintf(stdout, "  - %s\n", alias)
		}
	}
	if opts.add != "" {
		if err := mgr.AddAlias(ctx, opts.account, opts.add); err != nil {
			return fmt.Errorf("add alias %s to %s: %w", opts.add, opts.account, err)
		}
	}
	if opts.remove != "" {
		if err := mgr.RemoveAlias(ctx, opts.account, opts.remove); err != nil {
			return fmt.Errorf("remove alias %s from %s: %w", opts.remove, opts.account, err)
		}
	}
	return nil
}
