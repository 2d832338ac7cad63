package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/health/grpc_health_v1"

	"licensekeeper/pkg/client"
	"licensekeeper/pkg/middleware"
	"licensekeeper/pkg/util"
	"licensekeeper/services/license"
)

const requestTimeout = 30 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string, stdout, stderr io.Writer) error
}

var commands = []command{
	{"check", "validate a client/key pair against the public endpoint", runCheck},
	{"list", "list licenses (keys masked)", runList},
	{"create", "create a license", runCreate},
	{"update", "change valid_until for every license of a client", runUpdate},
	{"health", "probe the gRPC health endpoint", runHealth},
	{"hash-token", "print the bcrypt hash to use as ADMIN.TOKEN_HASH", runHashToken},
}

// errNotValid makes `check` exit 1 without printing an error line.
var errNotValid = errors.New("license not valid")

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		if len(args) == 0 {
			return 2
		}
		return 0
	}

	for _, cmd := range commands {
		if cmd.name != args[0] {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := cmd.run(ctx, args[1:], stdout, stderr); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 0
			}
			if !errors.Is(err, errNotValid) {
				fmt.Fprintf(stderr, "Error: %v\n", err)
			}
			return 1
		}
		return 0
	}

	fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
	printUsage(stderr)
	return 2
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: licensectl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-11s %s\n", cmd.name, cmd.usage)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  LICENSE_SERVER_URL   default for --url")
	fmt.Fprintln(w, "  LICENSE_ADMIN_TOKEN  default for --token")
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type serverFlags struct {
	url          string
	token        string
	validatePath string
}

func newFlagSet(name string, stderr io.Writer, admin bool) (*flag.FlagSet, *serverFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	sf := &serverFlags{}
	fs.StringVar(&sf.url, "url", getEnvOrDefault("LICENSE_SERVER_URL", "http://localhost:8080"), "license server base URL")
	if admin {
		fs.StringVar(&sf.token, "token", os.Getenv("LICENSE_ADMIN_TOKEN"), "admin bearer token")
	} else {
		fs.StringVar(&sf.validatePath, "path", "/api", "validation endpoint path")
	}
	return fs, sf
}

func (sf *serverFlags) client() *client.LicenseClient {
	opts := []client.Option{client.WithToken(sf.token)}
	if sf.validatePath != "" {
		opts = append(opts, client.WithValidatePath(sf.validatePath))
	}
	return client.NewLicenseClient(sf.url, opts...)
}

func requireFlags(fs *flag.FlagSet, names ...string) error {
	for _, name := range names {
		if fs.Lookup(name).Value.String() == "" {
			return fmt.Errorf("--%s is required", name)
		}
	}
	return nil
}

func runCheck(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, sf := newFlagSet("check", stderr, false)
	clientID := fs.String("client-id", "", "client identifier")
	licenseKey := fs.String("license-key", "", "license key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "client-id", "license-key"); err != nil {
		return err
	}

	v, err := sf.client().Validate(ctx, *clientID, *licenseKey)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s (valid until %s)\n", v.Status, v.ValidUntil)
	if !v.Valid() {
		return errNotValid
	}
	return nil
}

func runList(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, sf := newFlagSet("list", stderr, true)
	if err := fs.Parse(args); err != nil {
		return err
	}

	list, err := sf.client().ListLicenses(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%-24s %-14s %s\n", "CLIENT_ID", "KEY", "VALID_UNTIL")
	for _, l := range list.Licenses {
		fmt.Fprintf(stdout, "%-24s %-14s %s\n", l.ClientID, l.LicenseKeyPrefix, l.ValidUntil)
	}
	fmt.Fprintf(stdout, "%d license(s)\n", list.Count)
	return nil
}

func runCreate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, sf := newFlagSet("create", stderr, true)
	clientID := fs.String("client-id", "", "client identifier")
	licenseKey := fs.String("license-key", "", "license key")
	generate := fs.Bool("generate-key", false, "generate a random license key instead of --license-key")
	validUntil := fs.String("valid-until", license.DefaultValidUntil(time.Now()), "expiry date, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *generate && *licenseKey == "" {
		key, err := util.GenerateLicenseKey(0)
		if err != nil {
			return err
		}
		*licenseKey = key
	}
	if err := requireFlags(fs, "client-id", "license-key"); err != nil {
		return err
	}

	created, err := sf.client().CreateLicense(ctx, *clientID, *licenseKey, *validUntil)
	if err != nil {
		return describe(err)
	}

	fmt.Fprintf(stdout, "License for %s created, valid until %s (id %s)\n", created.ClientID, created.ValidUntil, created.ID)
	if *generate {
		fmt.Fprintf(stdout, "License key: %s\n", created.LicenseKey)
	}
	return nil
}

func runUpdate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, sf := newFlagSet("update", stderr, true)
	clientID := fs.String("client-id", "", "client identifier")
	validUntil := fs.String("valid-until", "", "new expiry date, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "client-id", "valid-until"); err != nil {
		return err
	}

	upd, err := sf.client().UpdateValidity(ctx, *clientID, *validUntil)
	if err != nil {
		return describe(err)
	}

	if upd.RowsAffected == 0 {
		fmt.Fprintf(stdout, "No license found for %s, nothing updated\n", upd.ClientID)
		return nil
	}
	fmt.Fprintf(stdout, "Validity for %s updated to %s (%d row(s))\n", upd.ClientID, upd.ValidUntil, upd.RowsAffected)
	return nil
}

func runHealth(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("grpc-addr", getEnvOrDefault("LICENSE_GRPC_ADDR", "localhost:9090"), "gRPC server address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	status, err := client.CheckHealth(ctx, *addr)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, status.String())
	if status != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("server at %s is %s", *addr, status)
	}
	return nil
}

func runHashToken(_ context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("hash-token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	token := fs.String("token", "", "admin token to hash")
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "token"); err != nil {
		return err
	}

	hash, err := middleware.HashToken(*token, *cost)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash)
	return nil
}

// describe appends per-field validation messages to an API error.
func describe(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Details) == 0 {
		return err
	}
	msg := apiErr.Error()
	for _, d := range apiErr.Details {
		msg += fmt.Sprintf("\n  %s: %s", d.Field, d.Message)
	}
	return errors.New(msg)
}
