package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChrisColeTech/proxydash"
	"github.com/ChrisColeTech/proxydash/internal/server"
	"github.com/ChrisColeTech/proxydash/pkg/client"
)

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the proxydash daemon",
		Long: `Start the proxydash daemon: connect to the proxy event stream and
serve the REST API.

Examples:
  proxydash serve                     # Built-in defaults (local proxy)
  proxydash serve config.toml         # Start with specific config file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return runServe(configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	dash, err := proxydash.New(cfg)
	if err != nil {
		return err
	}
	if err := dash.Run(); err != nil {
		return err
	}

	srv, err := proxydash.NewHTTPServer(cfg, dash)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	fmt.Printf("Starting proxydash server on %s%s\n", cfg.Server.Listen, cfg.Server.BasePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	dash.Close()
	return srv.Close()
}

// createStatusCommand creates the status subcommand
func createStatusCommand(apiFlags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the merged upstream snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(apiFlags, func(ctx context.Context, c *client.Client) error {
				snap, err := c.Status(ctx)
				if err != nil {
					return err
				}
				printJSON(snap)
				return nil
			})
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

// createLifecycleCommand creates the lifecycle subcommand
func createLifecycleCommand(apiFlags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lifecycle",
		Short: "Show the proxy lifecycle status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(apiFlags, func(ctx context.Context, c *client.Client) error {
				st, err := c.Lifecycle(ctx)
				if err != nil {
					return err
				}
				printJSON(st)
				return nil
			})
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

// createConnectionCommand creates the connection subcommand
func createConnectionCommand(apiFlags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection",
		Short: "Show the event-stream connection status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(apiFlags, func(ctx context.Context, c *client.Client) error {
				ci, err := c.Connection(ctx)
				if err != nil {
					return err
				}
				printJSON(ci)
				return nil
			})
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

// createAlertsCommand creates the alerts subcommand
func createAlertsCommand(apiFlags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show recently displayed alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(apiFlags, func(ctx context.Context, c *client.Client) error {
				out, err := c.Alerts(ctx)
				if err != nil {
					return err
				}
				printJSON(out)
				return nil
			})
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

// createStartCommand creates the start subcommand
func createStartCommand(apiFlags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the proxy via the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(apiFlags, func(ctx context.Context, c *client.Client) error {
				if err := c.StartProxy(ctx); err != nil {
					return err
				}
				fmt.Println("start requested")
				return nil
			})
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

// createStopCommand creates the stop subcommand
func createStopCommand(apiFlags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the proxy via the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(apiFlags, func(ctx context.Context, c *client.Client) error {
				if err := c.StopProxy(ctx); err != nil {
					return err
				}
				fmt.Println("stop requested")
				return nil
			})
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

// createWatchCommand creates the watch subcommand. Watch embeds the engine
// directly rather than polling the daemon.
func createWatchCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow state changes live",
		Long: `Connect to the proxy event stream directly and print each state
change as it arrives. Useful for debugging the upstream without running the
full daemon.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			// Watch is a viewer; no REST surface or metrics endpoint.
			cfg.Metrics.Enabled = false

			dash, err := proxydash.New(cfg)
			if err != nil {
				return err
			}
			unsubscribe := dash.Subscribe(func(ch proxydash.Change) {
				switch ch {
				case proxydash.ChangeLifecycle:
					st := dash.Lifecycle()
					fmt.Printf("[lifecycle] %s %s\n", st.State, st.Message)
				case proxydash.ChangeConnection:
					ci := dash.Connection()
					fmt.Printf("[connection] %s attempts=%d\n", ci.Status, ci.Attempts)
				case proxydash.ChangeAlert:
					if alerts := dash.Alerts(); len(alerts) > 0 {
						a := alerts[len(alerts)-1]
						fmt.Printf("[alert] %s: %s\n", a.Severity, a.Message)
					}
				default:
					printJSON(dash.Snapshot())
				}
			})
			defer unsubscribe()

			if err := dash.Run(); err != nil {
				return err
			}
			defer dash.Close()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			return nil
		},
	}
}

// createHashTokenCommand creates the hash-token subcommand
func createHashTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Hash an API token for the server.token_hash config field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := server.HashToken(args[0])
			if err != nil {
				return err
			}
			fmt.Println(h)
			return nil
		},
	}
}

func addAPIFlags(cmd *cobra.Command, apiFlags *APIFlags) {
	cmd.Flags().StringVar(&apiFlags.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8088/api)")
	cmd.Flags().StringVar(&apiFlags.APIToken, "api-token", "", "bearer token for the daemon API")
	cmd.Flags().StringVar(&apiFlags.APITimeout, "api-timeout", "10s", "request timeout")
}

func withClient(apiFlags *APIFlags, fn func(context.Context, *client.Client) error) error {
	apiURL := apiFlags.APIUrl
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8088/api"
	}
	timeout := 10 * time.Second
	if d, err := time.ParseDuration(apiFlags.APITimeout); err == nil && d > 0 {
		timeout = d
	}

	c := client.New(client.Config{BaseURL: apiURL, Token: apiFlags.APIToken, Timeout: timeout})
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if !c.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s - please start daemon first with 'proxydash serve'", apiURL)
	}
	return fn(ctx, c)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
