// Command rwsctl reads and drives an ABB robot controller over RWS.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andaru/rws/client"
	"github.com/andaru/rws/session"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rwsctl",
	Short: "Robot Web Services client",
	Long: `rwsctl talks to an ABB robot controller through Robot Web Services.

The controller and credentials are read from RWS_* environment
variables, optionally loaded from a .env file.

Examples:
  rwsctl info                          # Controller and RAPID state
  rwsctl signal get DO_1               # Read an IO signal
  rwsctl signal set DO_1 1             # Write an IO signal
  rwsctl subscribe --events 5 '/rw/iosystem/signals/DO_1;state'
  rwsctl file get '$home' prog.mod     # Print a controller file`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print controller information and state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			static, err := c.CollectStaticInfo(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				Static  client.StaticInfo  `json:"static"`
				Runtime client.RuntimeInfo `json:"runtime"`
			}{static, c.CollectRuntimeInfo(ctx)})
		})
	},
}

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Read or write IO signals",
}

var signalGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print the value of an IO signal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			v, err := c.GetIOSignal(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		})
	},
}

var signalSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Set the value of an IO signal",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			return c.SetIOSignal(ctx, args[0], args[1])
		})
	},
}

var flagEvents int

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <uri>...",
	Short: "Subscribe to resources and print each event",
	Long: `Subscribe to one or more resources and print the XML of each event.

Resources are given with their subscription suffix, e.g.
/rw/iosystem/signals/DO_1;state. The subscription ends after --events
events, when the controller closes it, or on interrupt.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			var resources client.SubscriptionResources
			for _, uri := range args {
				resources.Add(uri, client.PriorityMedium)
			}
			if err := c.StartSubscription(ctx, resources); err != nil {
				return err
			}
			defer func() {
				if err := c.EndSubscription(context.Background()); err != nil {
					slog.Warn("end subscription failed", "error", err)
				}
			}()
			for n := 0; flagEvents <= 0 || n < flagEvents; n++ {
				doc, err := c.WaitForSubscriptionEvent(ctx)
				if errors.Is(err, client.ErrSubscriptionClosed) || ctx.Err() != nil {
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), doc.OutputXML(true))
			}
			return nil
		})
	},
}

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Access the controller file service",
}

var fileGetCmd = &cobra.Command{
	Use:   "get <directory> <filename>",
	Short: "Print a controller file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			content, err := c.GetFile(ctx, client.FileResource{Directory: args[0], Filename: args[1]})
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), content)
			return err
		})
	},
}

func init() {
	subscribeCmd.Flags().IntVarP(&flagEvents, "events", "n", 0, "Number of events to print (0 = until closed)")

	signalCmd.AddCommand(signalGetCmd, signalSetCmd)
	fileCmd.AddCommand(fileGetCmd)
	rootCmd.AddCommand(infoCmd, signalCmd, subscribeCmd, fileCmd)
}

// withClient loads the configuration, opens a session and runs fn with
// a client on it. The session is logged out and closed afterwards.
func withClient(cmd *cobra.Command, fn func(context.Context, *client.Client) error) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		return errors.Wrap(err, "logger setup failed")
	}
	slog.Debug("rwsctl config loaded",
		"host", cfg.Host,
		"port", cfg.Port,
		"username", cfg.Username,
		"http_timeout", cfg.HTTPTimeout,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	s, err := session.New(cfg.Session(slog.Default()))
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(s)
	err = fn(ctx, c)
	if err != nil {
		slog.Debug("request log", "log", c.LogText(true))
	}
	if lerr := c.Logout(context.Background()); lerr != nil {
		slog.Debug("logout failed", "error", lerr)
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
