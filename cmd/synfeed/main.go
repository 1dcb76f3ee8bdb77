package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pders01/synfeed/internal/app"
	"github.com/pders01/synfeed/internal/config"
	"github.com/pders01/synfeed/internal/debuglog"
)

// Version is the version of the application, set at build time
var Version = "dev"

// cli holds the global flags shared by every subcommand.
type cli struct {
	cfgFile string
	dbPath  string
	as      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "synfeed",
		Short:        "A social feed for the terminal",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "Path to database file (overrides config)")
	root.PersistentFlags().StringVar(&c.as, "as", "", "Act as this user id (overrides identity)")

	root.AddCommand(
		c.feedCmd(),
		c.tuiCmd(),
		c.storiesCmd(),
		c.toggleCmd("like", "Like or unlike a post"),
		c.toggleCmd("favorite", "Save or unsave a post"),
		c.postCmd(),
		c.searchCmd(),
		c.seedCmd(),
		c.importCmd(),
		c.serveCmd(),
		c.statsCmd(),
		c.tokenCmd(),
		configCmd(),
		versionCmd(),
	)
	return root
}

// loadConfig reads configuration and applies the global flag overrides.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.dbPath != "" {
		cfg.Database.Path = c.dbPath
	}
	if err := debuglog.Setup(debuglog.ParseLogLevel(cfg.Log.Level), cfg.Log.File); err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	return cfg, nil
}

// open loads configuration and assembles the App. Callers must Close it.
func (c *cli) open() (*app.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	var opts []app.Option
	if c.as != "" {
		opts = append(opts, app.AsUser(c.as))
	}
	a, err := app.New(cfg, opts...)
	if err != nil {
		debuglog.Close()
		return nil, err
	}
	return a, nil
}

// withApp runs fn against a freshly opened App and closes it afterwards.
func (c *cli) withApp(fn func(cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := c.open()
		if err != nil {
			return err
		}
		defer debuglog.Close()
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "synfeed %s\n", Version)
			fmt.Fprintln(out, "Social feed")
			fmt.Fprintln(out, "github.com/pders01/synfeed")
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	var path string
	gen := &cobra.Command{
		Use:   "generate",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = config.DefaultPath()
			}
			if err := config.GenerateDefaultConfig(path); err != nil {
				return fmt.Errorf("generating config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default configuration at: %s\n", path)
			return nil
		},
	}
	gen.Flags().StringVar(&path, "path", "", "Destination file (default ~/.config/synfeed/config.toml)")
	cmd.AddCommand(gen)
	return cmd
}
