// Command adminctl calls the admin gateway on behalf of a logged-in
// operator. It discovers the gateway's identity provider, exchanges a refresh
// token for ID tokens and reports an expired session once.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/joeshaw/envdecode"
	"github.com/upb/admin-gateway/config"
	"github.com/upb/admin-gateway/internal/observability"
	"github.com/upb/admin-gateway/session"
	"golang.org/x/oauth2"
)

// Exit codes
const (
	exitOK             = 0
	exitError          = 1
	exitUsage          = 2
	exitSessionExpired = 3
)

// Config is loaded from the environment
type Config struct {
	GatewayURL   string        `env:"ADMINCTL_GATEWAY_URL,default=http://localhost:8080"`
	RefreshToken string        `env:"ADMINCTL_REFRESH_TOKEN"`
	ClientID     string        `env:"ADMINCTL_CLIENT_ID"`
	ClientSecret string        `env:"ADMINCTL_CLIENT_SECRET"`
	TokenURL     string        `env:"ADMINCTL_TOKEN_URL"`
	Timeout      time.Duration `env:"ADMINCTL_TIMEOUT,default=15s"`
	LogLevel     string        `env:"ADMINCTL_LOG_LEVEL,default=warn"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		fmt.Fprintf(os.Stderr, "adminctl: %v\n", err)
		os.Exit(exitUsage)
	}
	os.Exit(run(ctx, cfg, os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: adminctl [-gateway URL] <command>

commands:
  config              show the gateway's identity provider
  me                  show the identity the gateway sees
  list <collection>   list api-keys, pricing or model-mappings
  get <collection> <id>`)
}

func run(ctx context.Context, cfg Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("adminctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	fs.StringVar(&cfg.GatewayURL, "gateway", cfg.GatewayURL, "gateway base URL")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	path, ok := commandPath(fs.Args())
	if !ok {
		usage(stderr)
		return exitUsage
	}

	logger, err := observability.NewLogger(config.ObservabilityConfig{LogLevel: cfg.LogLevel, LogFormat: "console"})
	if err != nil {
		fmt.Fprintf(stderr, "adminctl: %v\n", err)
		return exitUsage
	}
	defer func() { _ = logger.Sync() }()

	plain := &http.Client{Timeout: cfg.Timeout}
	provider, err := session.DiscoverProvider(ctx, plain, cfg.GatewayURL)
	if err != nil {
		fmt.Fprintf(stderr, "adminctl: %v\n", err)
		return exitError
	}
	if fs.Arg(0) == "config" {
		return printJSON(stdout, stderr, provider)
	}

	tokens, err := tokenSource(ctx, cfg, provider, plain)
	if err != nil {
		fmt.Fprintf(stderr, "adminctl: %v\n", err)
		return exitUsage
	}

	expired := false
	guard := session.NewGuard(tokens,
		session.WithLogger(logger.Named("session")),
		session.OnSessionExpired(func(session.Signal) {
			expired = true
			fmt.Fprintln(stderr, session.UserMessage)
		}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(cfg.GatewayURL, "/")+path, nil)
	if err != nil {
		fmt.Fprintf(stderr, "adminctl: %v\n", err)
		return exitError
	}
	req.Header.Set("Accept", "application/json")

	resp, err := guard.Client(cfg.Timeout).Do(req)
	if err != nil {
		if expired || errors.Is(err, session.ErrSessionExpired) {
			return exitSessionExpired
		}
		fmt.Fprintf(stderr, "adminctl: %v\n", err)
		return exitError
	}
	defer resp.Body.Close()

	if expired {
		return exitSessionExpired
	}

	var body any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&body); err != nil {
		fmt.Fprintf(stderr, "adminctl: decode response: %v\n", err)
		return exitError
	}
	if code := printJSON(stdout, stderr, body); code != exitOK {
		return code
	}
	if resp.StatusCode >= 400 {
		return exitError
	}
	return exitOK
}

// commandPath maps a command line to the gateway path it reads
func commandPath(args []string) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	switch args[0] {
	case "config":
		return session.AuthConfigPath, len(args) == 1
	case "me":
		return "/api/me", len(args) == 1
	case "list":
		if len(args) != 2 {
			return "", false
		}
		return "/api/" + args[1], true
	case "get":
		if len(args) != 3 {
			return "", false
		}
		return "/api/" + args[1] + "/" + args[2], true
	default:
		return "", false
	}
}

// tokenSource builds the ID token source for a configured gateway. It
// returns nil when the gateway runs without an identity provider.
func tokenSource(ctx context.Context, cfg Config, provider *session.ProviderConfig, client *http.Client) (session.TokenSource, error) {
	if !provider.Configured {
		return nil, nil
	}
	if cfg.RefreshToken == "" {
		return nil, errors.New("ADMINCTL_REFRESH_TOKEN is required for a gateway with an identity provider")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = provider.ClientID
	}

	// oauth2 picks its HTTP client up from the context
	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, client)

	endpoint := oauth2.Endpoint{TokenURL: cfg.TokenURL}
	if endpoint.TokenURL == "" {
		p, err := oidc.NewProvider(oidc.ClientContext(ctx, client), provider.Issuer)
		if err != nil {
			return nil, fmt.Errorf("discover token endpoint: %w", err)
		}
		endpoint = p.Endpoint()
	}

	src := session.RefreshTokenSource(oauthCtx, endpoint, clientID, cfg.ClientSecret, cfg.RefreshToken)
	return session.NewOAuth2Source(src, false), nil
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "adminctl: %v\n", err)
		return exitError
	}
	return exitOK
}
