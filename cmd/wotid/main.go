package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	_ "net/http/pprof"
	"os"
	"runtime"
	"time"

	"github.com/wot-id/identity/auth"
	"github.com/wot-id/identity/challenge"
	"github.com/wot-id/identity/client"
	"github.com/wot-id/identity/health"
	"github.com/wot-id/identity/identity"
	"github.com/wot-id/identity/syntax"
	"github.com/wot-id/identity/util/cliutil"
	"github.com/wot-id/identity/verification"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "wotid",
		Usage:   "DID challenge-response identity verification service",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "ledger-url",
			Usage:   "JSON-RPC endpoint of the ledger node",
			Value:   "https://api.testnet.iota.cafe",
			EnvVars: []string{"WOTID_LEDGER_URL", "IOTA_NODE_URL", "API_ENDPOINT"},
		},
		&cli.IntFlag{
			Name:    "ledger-rate-limit",
			Usage:   "max number of requests per second to the ledger node (0 for unlimited)",
			Value:   50,
			EnvVars: []string{"WOTID_LEDGER_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "resolver",
			Usage:   "DID resolver backend: 'ledger' (JSON-RPC) or 'universal' (HTTP resolver)",
			Value:   "ledger",
			EnvVars: []string{"WOTID_RESOLVER"},
		},
		&cli.StringFlag{
			Name:    "resolver-url",
			Usage:   "base URL of a universal resolver (with 'universal' resolver)",
			EnvVars: []string{"WOTID_RESOLVER_URL"},
		},
		&cli.StringFlag{
			Name:    "resolve-method",
			Usage:   "ledger JSON-RPC method used for DID resolution",
			Value:   identity.DefaultResolveMethod,
			EnvVars: []string{"WOTID_RESOLVE_METHOD"},
		},
		&cli.DurationFlag{
			Name:    "resolve-timeout",
			Usage:   "timeout for each DID resolution",
			Value:   verification.DefaultTimeout,
			EnvVars: []string{"WOTID_RESOLVE_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"WOTID_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
		},
	}

	clientFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Usage:   "wotid server to send requests to",
			Value:   "http://localhost:8081",
			EnvVars: []string{"WOTID_HOST", "IDENTITY_SERVICE_URL"},
		},
	}

	app.Commands = []*cli.Command{
		serveCmd,
		&cli.Command{
			Name:      "initiate",
			ArgsUsage: `<email>`,
			Usage:     "request a challenge from a wotid server",
			Flags:     clientFlags,
			Action:    runInitiateCmd,
		},
		&cli.Command{
			Name:  "verify",
			Usage: "submit a signed challenge to a wotid server",
			Flags: append([]cli.Flag{
				&cli.StringFlag{Name: "did", Required: true},
				&cli.StringFlag{Name: "challenge", Required: true},
				&cli.StringFlag{Name: "signature", Usage: "compact JWS", Required: true},
			}, clientFlags...),
			Action: runVerifyCmd,
		},
		&cli.Command{
			Name:   "health",
			Usage:  "fetch the health report of a wotid server",
			Flags:  clientFlags,
			Action: runHealthCmd,
		},
		&cli.Command{
			Name:      "resolve",
			ArgsUsage: `<did>`,
			Usage:     "resolve a DID document with the configured resolver",
			Action:    runResolveCmd,
		},
		&cli.Command{
			Name:      "keygen",
			ArgsUsage: `<file>`,
			Usage:     "generate an Ed25519 secret key and save it as JWK",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "kid",
					Usage: "key ID to record in the JWK",
					Value: "key-1",
				},
			},
			Action: runKeygenCmd,
		},
		&cli.Command{
			Name:  "sign",
			Usage: "sign a challenge with a JWK secret key, printing the compact JWS",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "key", Usage: "path to JWK secret key file", Required: true},
				&cli.StringFlag{Name: "challenge", Required: true},
				&cli.StringFlag{Name: "did", Usage: "signing DID (default: did:key of the secret key)"},
				&cli.StringFlag{Name: "kid", Usage: "verification method reference (default: key ID from the key file)"},
				&cli.DurationFlag{Name: "ttl", Usage: "expiry of the signed statement (0 for none)", Value: 2 * time.Minute},
			},
			Action: runSignCmd,
		},
		subjectCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: cliutil.ParseLogLevel(cctx.String("log-level")),
	}))
	slog.SetDefault(logger)
	return logger
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the wotid API daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "bind",
			Usage:    "Specify the local IP/port to bind to",
			Required: false,
			Value:    ":8081",
			EnvVars:  []string{"WOTID_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3989",
			EnvVars: []string{"WOTID_METRICS_LISTEN"},
		},
		&cli.DurationFlag{
			Name:    "challenge-ttl",
			Usage:   "lifetime of an issued challenge",
			Value:   challenge.DefaultTTL,
			EnvVars: []string{"WOTID_CHALLENGE_TTL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for shared challenge state: redis://<user>:<pass>@<hostname>:6379/<db>",
			EnvVars: []string{"WOTID_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "subject-directory",
			Usage:   "JSON file mapping emails to DIDs",
			EnvVars: []string{"WOTID_SUBJECT_DIRECTORY"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "subject directory database: sqlite://<path> or postgres://...",
			EnvVars: []string{"WOTID_DATABASE_URL", "DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "identity-pkg-id",
			Usage:   "on-ledger identity package to look up subjects in",
			EnvVars: []string{"WOTID_IDENTITY_PKG_ID", "IOTA_IDENTITY_PKG_ID"},
		},
		&cli.BoolFlag{
			Name:    "dev",
			Usage:   "fall back to a built-in development subject directory",
			EnvVars: []string{"WOTID_DEV"},
		},
		&cli.DurationFlag{
			Name:    "oracle-timeout",
			Usage:   "timeout for each subject lookup",
			Value:   verification.DefaultTimeout,
			EnvVars: []string{"WOTID_ORACLE_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "oracle-cache-size",
			Usage:   "number of subject lookups to cache (0 disables caching)",
			Value:   10_000,
			EnvVars: []string{"WOTID_ORACLE_CACHE_SIZE"},
		},
		&cli.DurationFlag{
			Name:    "oracle-cache-ttl",
			Usage:   "how long subject lookups are cached",
			Value:   5 * time.Minute,
			EnvVars: []string{"WOTID_ORACLE_CACHE_TTL"},
		},
		&cli.StringSliceFlag{
			Name:    "health-upstream",
			Usage:   "base URL of an upstream service whose /health is included in the report (repeatable)",
			EnvVars: []string{"WOTID_HEALTH_UPSTREAMS"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stdout)
		ctx := cctx.Context

		shutdownOTEL, err := configOTEL(ctx, "wotid")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		bind := cctx.String("bind")
		if port := os.Getenv("PORT"); port != "" && !cctx.IsSet("bind") {
			bind = ":" + port
		}

		srv, err := NewServer(ctx, &Config{
			Logger:            logger,
			Bind:              bind,
			LedgerURL:         cctx.String("ledger-url"),
			LedgerRateLimit:   cctx.Int("ledger-rate-limit"),
			Resolver:          cctx.String("resolver"),
			ResolverURL:       cctx.String("resolver-url"),
			ResolveMethod:     cctx.String("resolve-method"),
			ResolveTimeout:    cctx.Duration("resolve-timeout"),
			ChallengeTTL:      cctx.Duration("challenge-ttl"),
			RedisURL:          cctx.String("redis-url"),
			SubjectDirectory:  cctx.String("subject-directory"),
			DatabaseURL:       cctx.String("database-url"),
			IdentityPackageID: cctx.String("identity-pkg-id"),
			DevSubjects:       cctx.Bool("dev"),
			OracleTimeout:     cctx.Duration("oracle-timeout"),
			OracleCacheSize:   cctx.Int("oracle-cache-size"),
			OracleCacheTTL:    cctx.Duration("oracle-cache-ttl"),
			HealthUpstreams:   cctx.StringSlice("health-upstream"),
		})
		if err != nil {
			return fmt.Errorf("failed to construct server: %v", err)
		}

		// prometheus HTTP endpoint: /metrics
		metricsCtx, cancelMetrics := context.WithCancel(ctx)
		defer cancelMetrics()
		go func() {
			runtime.SetBlockProfileRate(10)
			runtime.SetMutexProfileFraction(10)
			if err := srv.RunMetrics(metricsCtx, cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				// NOTE: not crashing or halting process here
			}
		}()

		return srv.RunAPI()
	},
}

func configClient(cctx *cli.Context) *client.Client {
	return client.NewClient(cctx.String("host"))
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func runInitiateCmd(cctx *cli.Context) error {
	email := cctx.Args().First()
	if email == "" {
		return fmt.Errorf("need to provide email for the challenge")
	}
	out, err := configClient(cctx).InitiateChallenge(cctx.Context, email)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runVerifyCmd(cctx *cli.Context) error {
	out, err := configClient(cctx).VerifySignature(cctx.Context, cctx.String("did"), cctx.String("challenge"), cctx.String("signature"))
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runHealthCmd(cctx *cli.Context) error {
	report, err := configClient(cctx).Health(cctx.Context)
	if err != nil {
		return err
	}
	if err := printJSON(report); err != nil {
		return err
	}
	if report.Status == health.StatusError {
		return fmt.Errorf("service unhealthy")
	}
	return nil
}

func runResolveCmd(cctx *cli.Context) error {
	s := cctx.Args().First()
	if s == "" {
		return fmt.Errorf("need to provide DID for resolution")
	}
	did, err := syntax.ParseDID(s)
	if err != nil {
		return err
	}

	config := &Config{
		LedgerURL:       cctx.String("ledger-url"),
		LedgerRateLimit: cctx.Int("ledger-rate-limit"),
		Resolver:        cctx.String("resolver"),
		ResolverURL:     cctx.String("resolver-url"),
		ResolveMethod:   cctx.String("resolve-method"),
	}
	resolver, err := configResolver(config, configLedger(config, slog.Default()))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cctx.Context, cctx.Duration("resolve-timeout"))
	defer cancel()
	doc, err := resolver.ResolveDID(ctx, did)
	if err != nil {
		return err
	}
	return printJSON(doc)
}

func runKeygenCmd(cctx *cli.Context) error {
	fname := cctx.Args().First()
	if fname == "" {
		return fmt.Errorf("need to provide a path for the key file")
	}
	key, err := cliutil.GenerateKeyToFile(fname, cctx.String("kid"))
	if err != nil {
		return err
	}
	pub := key.PublicKey()
	return printJSON(map[string]string{
		"file":               fname,
		"kid":                key.KeyID,
		"publicKeyMultibase": identity.EncodeMultibaseEd25519(pub),
		"didKey":             identity.DIDKeyFromEd25519(pub).String(),
	})
}

func runSignCmd(cctx *cli.Context) error {
	key, err := cliutil.LoadKeyFromFile(cctx.String("key"))
	if err != nil {
		return err
	}

	var did syntax.DID
	kid := cctx.String("kid")
	if s := cctx.String("did"); s != "" {
		did, err = syntax.ParseDID(s)
		if err != nil {
			return err
		}
		if kid == "" && key.KeyID != "" {
			kid = "#" + key.KeyID
		}
	} else {
		// self-describing did:key; its only verification method is named after the key fingerprint
		pub := key.PublicKey()
		did = identity.DIDKeyFromEd25519(pub)
		if kid == "" {
			kid = did.WithFragment(identity.EncodeMultibaseEd25519(pub))
		}
	}
	if kid == "" {
		return fmt.Errorf("key file has no key ID; provide --kid")
	}

	jws, err := auth.SignChallenge(did, kid, cctx.String("challenge"), key.PrivateKey, cctx.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Println(jws)
	return nil
}
