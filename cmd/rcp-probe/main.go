// Command rcp-probe connects to an RCP server, authenticates with one or
// more methods and verifies the session with a ping round trip. It is meant
// for smoke testing server deployments and client configs.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rcpkit/rcpkit/internal/config"
	"github.com/rcpkit/rcpkit/internal/core/auth"
	"github.com/rcpkit/rcpkit/internal/core/auth/secret"
	"github.com/rcpkit/rcpkit/internal/core/observability/log"
	"github.com/rcpkit/rcpkit/internal/core/protocol"
	quicconn "github.com/rcpkit/rcpkit/internal/core/protocol/quic"
	wsconn "github.com/rcpkit/rcpkit/internal/core/protocol/websocket"
)

func main() {
	var (
		configPath = flag.String("config", "rcp-client.yaml", "path to the client config file")
		address    = flag.String("address", "", "server address override")
		port       = flag.Int("port", 0, "server port override")
		transport  = flag.String("transport", "", "transport override: tcp, websocket or quic")
		methods    = flag.String("methods", "", "comma separated auth methods to probe (defaults to the configured method)")
		timeout    = flag.Duration("timeout", 10*time.Second, "per probe timeout")
		confirm    = flag.Bool("confirm", false, "wait for an explicit auth verdict instead of assuming success")
	)
	flag.Parse()

	// A missing .env is fine, the environment may already carry overrides.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Server.Address = *address
	}
	if *port > 0 && *port <= 65535 {
		cfg.Server.Port = uint16(*port)
	}
	if *transport != "" {
		cfg.Server.Transport = *transport
	}
	if err = cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Invalid config:", err)
		os.Exit(1)
	}

	logger := log.New(cfg.Log.LogLevel())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stopCh
		cancel()
	}()

	store, err := secret.New(cfg.Secret.StoreConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error opening secret store:", err)
		os.Exit(1)
	}

	failed := 0
	for _, name := range methodList(*methods, cfg.Auth.Method) {
		method, err := auth.ParseMethod(name)
		if err != nil {
			fmt.Printf("%-10s SKIP  %v\n", name, err)
			failed++
			continue
		}
		if err = probe(ctx, cfg, method, store, logger, *timeout, *confirm); err != nil {
			fmt.Printf("%-10s FAIL  %v\n", method, err)
			failed++
		} else {
			fmt.Printf("%-10s OK\n", method)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// probe runs one full session: dial, authenticate, ping, report.
func probe(ctx context.Context, cfg *config.Config, method auth.Method, store secret.Store, logger *log.Logger, timeout time.Duration, confirm bool) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := []protocol.ClientOption{protocol.WithLogger(logger)}
	if confirm {
		opts = append(opts, protocol.WithAuthConfirmation(timeout))
	}

	client, err := dial(probeCtx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	provider, err := buildProvider(cfg, method, store, logger)
	if err != nil {
		return err
	}

	ok, err := client.AuthenticateWithProvider(probeCtx, provider)
	if err != nil {
		return err
	}
	if !ok {
		return protocol.ErrAuthenticationFailed
	}

	if err = ping(probeCtx, client, logger); err != nil {
		return err
	}

	m := client.Metrics()
	fmt.Printf("  state=%s sent=%d received=%d bytes_out=%d bytes_in=%d\n",
		client.State(), m.MessagesSent, m.MessagesReceived, m.BytesSent, m.BytesReceived)
	return nil
}

// dial opens a client over the configured transport.
func dial(ctx context.Context, cfg *config.Config, opts ...protocol.ClientOption) (*protocol.Client, error) {
	address := cfg.Server.Address
	port := int(cfg.Server.Port)

	switch cfg.Server.Transport {
	case config.TransportWebSocket:
		scheme := "ws"
		if cfg.Server.UseTLS {
			scheme = "wss"
		}
		url := fmt.Sprintf("%s://%s/", scheme, net.JoinHostPort(address, strconv.Itoa(port)))
		conn, err := wsconn.Dial(ctx, url, protocol.DefaultConfig())
		if err != nil {
			return nil, err
		}
		return protocol.NewClient(conn, opts...), nil
	case config.TransportQUIC:
		tlsConfig := &tls.Config{InsecureSkipVerify: !cfg.Server.VerifyServer}
		conn, err := quicconn.Dial(ctx, address, port, tlsConfig, protocol.DefaultConfig())
		if err != nil {
			return nil, err
		}
		return protocol.NewClient(conn, opts...), nil
	default:
		if cfg.Server.UseTLS {
			tlsConfig := &protocol.TLSConfig{
				ClientCert:   cfg.Server.ClientCertPath,
				ClientKey:    cfg.Server.ClientKeyPath,
				VerifyServer: cfg.Server.VerifyServer,
			}
			return protocol.ConnectTLS(ctx, address, port, tlsConfig, opts...)
		}
		return protocol.Connect(ctx, address, port, opts...)
	}
}

// buildProvider assembles the auth provider for the probed method, applying
// the config extras the factory does not know about.
func buildProvider(cfg *config.Config, method auth.Method, store secret.Store, logger *log.Logger) (auth.Provider, error) {
	provider, err := auth.NewProvider(method, cfg.Auth.Username, store, logger)
	if err != nil {
		return nil, err
	}
	switch p := provider.(type) {
	case *auth.PasswordProvider:
		p.WithSave(cfg.Auth.SaveCredentials)
	case *auth.PskProvider:
		if cfg.Auth.Psk != "" {
			p.WithKey(cfg.Auth.Psk)
		}
		p.WithSave(cfg.Auth.SaveCredentials)
	}
	return provider, nil
}

// ping sends a ping and waits for the pong through the dispatcher.
func ping(ctx context.Context, client *protocol.Client, logger *log.Logger) error {
	dispatcher := protocol.NewDispatcher(client, logger)
	go func() { _ = dispatcher.Run(ctx) }()

	msg := protocol.NewPingMessage()
	if err := client.Send(ctx, msg); err != nil {
		return err
	}

	for {
		select {
		case reply := <-dispatcher.Forward():
			if reply.Type != protocol.MessageTypePong {
				continue
			}
			var payload protocol.PongPayload
			if err := reply.DecodePayload(&payload); err != nil {
				return err
			}
			if payload.PingID != "" && payload.PingID != msg.ID {
				continue
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func methodList(flagValue, configured string) []string {
	raw := flagValue
	if raw == "" {
		raw = configured
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
