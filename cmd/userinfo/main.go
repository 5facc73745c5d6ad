package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/httye/fetchplayers/internal/config"
	"github.com/httye/fetchplayers/internal/telemetry"
	"github.com/httye/fetchplayers/sdk"
)

// app holds what the subcommands share. The client and telemetry are
// built lazily by PersistentPreRunE and released by close.
type app struct {
	configPath string
	baseURL    string
	apiKey     string
	debug      bool
	noCache    bool

	cfg    *config.Config
	tel    *telemetry.Telemetry
	client sdk.Client
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "userinfo",
		Short:             "Query a UserInfoAPI game server",
		Long:              "Command line client for the UserInfoAPI plugin: player profiles, presence, login history, chat and server state.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: $USERINFO_CONFIG or ./userinfo.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.baseURL, "url", "", "API base URL, e.g. http://localhost:8080/api")
	rootCmd.PersistentFlags().StringVar(&a.apiKey, "api-key", "", "API key")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Log every request at debug level")
	rootCmd.PersistentFlags().BoolVar(&a.noCache, "no-cache", false, "Disable the response cache")

	rootCmd.AddCommand(
		userCmd(a, "info", "Show a player's profile", func(ctx context.Context, c sdk.Client, name string, opts ...sdk.CallOption) (interface{}, error) {
			return c.UserInfo(ctx, name, opts...)
		}),
		userCmd(a, "level", "Show a player's level and experience", func(ctx context.Context, c sdk.Client, name string, opts ...sdk.CallOption) (interface{}, error) {
			return c.UserLevel(ctx, name, opts...)
		}),
		userCmd(a, "location", "Show a player's location", func(ctx context.Context, c sdk.Client, name string, opts ...sdk.CallOption) (interface{}, error) {
			return c.UserLocation(ctx, name, opts...)
		}),
		userCmd(a, "inventory", "Show a player's inventory", func(ctx context.Context, c sdk.Client, name string, opts ...sdk.CallOption) (interface{}, error) {
			return c.UserInventory(ctx, name, opts...)
		}),
		loginsCmd(a),
		onlineCmd(a),
		simpleCmd(a, "status", "Show the server status", func(ctx context.Context, c sdk.Client) (interface{}, error) {
			return c.ServerStatus(ctx)
		}),
		simpleCmd(a, "security", "Show the server security configuration", func(ctx context.Context, c sdk.Client) (interface{}, error) {
			return c.SecurityInfo(ctx)
		}),
		simpleCmd(a, "summary", "Show status, online players and security together", func(ctx context.Context, c sdk.Client) (interface{}, error) {
			return c.ServerSummary(ctx)
		}),
		chatCmd(a),
		resourcesCmd(a),
		batchCmd(a),
		exportCmd(a),
		cacheCmd(a),
	)
	return rootCmd
}

// init loads configuration, starts telemetry and builds the client
func (a *app) init(ctx context.Context) error {
	if a.client != nil {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.baseURL != "" {
		cfg.Client.BaseURL = a.baseURL
	}
	if a.apiKey != "" {
		cfg.Client.APIKey = a.apiKey
	}
	if a.debug {
		cfg.Client.Debug = true
	}
	if a.noCache {
		cfg.Cache.Enabled = false
	}
	a.cfg = cfg

	tel, err := telemetry.Init(ctx, cfg.TelemetryConfig(sdk.Version))
	if err != nil {
		return err
	}
	a.tel = tel

	clientCfg, err := cfg.SDKConfig()
	if err != nil {
		return err
	}
	clientCfg.
		WithLogger(tel.Logger).
		WithMetrics(tel.Registry).
		WithTracerProvider(tel.TracerProvider())

	client, err := sdk.NewClientContext(ctx, clientCfg)
	if err != nil {
		return err
	}
	a.client = client
	return nil
}

// close releases the client and flushes telemetry
func (a *app) close() {
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			telemetry.L().WithError(err).Warn("Failed to close client")
		}
	}
	if a.tel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.tel.Shutdown(ctx)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// exitError appends the request ID of a failed operation
func exitError(err error) error {
	var sdkErr *sdk.Error
	if errors.As(err, &sdkErr) && sdkErr.RequestID != "" {
		return fmt.Errorf("%w (request %s)", err, sdkErr.RequestID)
	}
	return err
}
