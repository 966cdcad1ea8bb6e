package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/vango-dev/weft"
	"github.com/vango-dev/weft/internal/config"
	"github.com/vango-dev/weft/internal/demo"
	"github.com/vango-dev/weft/pkg/attach"
	"github.com/vango-dev/weft/pkg/measure"
	"github.com/vango-dev/weft/pkg/server"
	"github.com/vango-dev/weft/pkg/session"
	"github.com/vango-dev/weft/pkg/transport"
	"github.com/vango-dev/weft/pkg/tree"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo application",
		Long: `Start the HTTP server. Renderers connect to /ws; /healthz reports
liveness and /metrics exposes Prometheus metrics when enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if address != "" {
				cfg.WithAddress(address)
			}
			level, _ := cfg.LogLevel()
			logger := newLogger(os.Stderr, level, cfg.Log.Format)
			slog.SetDefault(logger)
			if f := cfg.File(); f != "" {
				logger.Info("loaded config", "file", f)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Override server.address")

	return cmd
}

func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.WithLogLevel(flags.logLevel)
		if _, err := cfg.LogLevel(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// sessionConfig is the base session configuration for the demo.
func sessionConfig(cfg *config.Config, logger *slog.Logger) session.Config {
	return session.Config{
		Router:       demo.Router(),
		Measurer:     measure.Default,
		Attachments:  demo.Attachments(),
		Sources:      sources(cfg),
		Window:       tree.Size{Width: cfg.Session.WindowWidth, Height: cfg.Session.WindowHeight},
		MaxRedirects: cfg.Session.MaxRedirects,
		Logger:       logger,
	}
}

func sources(cfg *config.Config) []session.Source {
	out := []session.Source{demo.AccountSource{}}
	if src := s3Source(cfg.Attachments); src != nil {
		out = append(out, src)
	}
	return out
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	srvCfg := server.DefaultConfig().WithAddress(cfg.Server.Address)
	srvCfg.DefaultPath = cfg.Server.DefaultPath
	srvCfg.TrustedProxies = cfg.Server.TrustedProxies
	srvCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	srvCfg.Transport = transport.Config{
		KeepaliveInterval: cfg.Transport.KeepaliveInterval,
		KeepaliveTimeout:  cfg.Transport.KeepaliveTimeout,
		WriteTimeout:      cfg.Transport.WriteTimeout,
		MaxMessageSize:    cfg.Transport.MaxMessageSize,
	}
	srvCfg.Logger = logger

	app := weft.New(weft.Config{
		Router:       demo.Router(),
		Attachments:  demo.Attachments(),
		Sources:      sources(cfg),
		Window:       tree.Size{Width: cfg.Session.WindowWidth, Height: cfg.Session.WindowHeight},
		MaxRedirects: cfg.Session.MaxRedirects,
		Server:       srvCfg,
		Sessions: session.ManagerConfig{
			MaxSessions:      cfg.Session.MaxSessions,
			MaxSessionsPerIP: cfg.Session.MaxSessionsPerIP,
		},
		Metrics:          cfg.Metrics.Enabled,
		MetricsNamespace: cfg.Metrics.Namespace,
		Logger:           logger,
	})
	if err := app.Run(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// s3Source returns the attachment source for the configured bucket, or nil.
func s3Source(c config.AttachmentsConfig) *attach.S3Source {
	if c.Bucket == "" {
		return nil
	}
	opts := s3.Options{
		Region:      c.Region,
		Credentials: envCredentials(),
	}
	if c.Endpoint != "" {
		opts.BaseEndpoint = aws.String(c.Endpoint)
		opts.UsePathStyle = true
	}
	return &attach.S3Source{
		Client:    s3.New(opts),
		Bucket:    c.Bucket,
		Prefix:    c.Prefix,
		Documents: demo.Documents(),
	}
}

// envCredentials reads the standard AWS_* variables. Without them requests
// are anonymous, which suits public buckets.
func envCredentials() aws.CredentialsProvider {
	id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.AnonymousCredentials{}
	}
	token := os.Getenv("AWS_SESSION_TOKEN")
	return aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: id, SecretAccessKey: secret, SessionToken: token, Source: "environment"}, nil
	}))
}
