package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/pders01/synfeed/internal/api"
	"github.com/pders01/synfeed/internal/app"
	"github.com/pders01/synfeed/internal/debuglog"
	"github.com/pders01/synfeed/internal/identity"
)

const shutdownTimeout = 5 * time.Second

func (c *cli) importCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "import URL",
		Short: "Import an RSS or Atom feed as posts by the current user",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			if a.Importer == nil {
				return errors.New("import needs a database")
			}
			uid, err := a.ViewerID()
			if err != nil {
				return err
			}
			r, err := a.Importer.Import(cmd.Context(), args[0], uid, force)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if r.NotModified {
				fmt.Fprintf(out, "%s not modified\n", r.Source.URL)
				return nil
			}
			name := r.Source.Title
			if name == "" {
				name = r.Source.URL
			}
			fmt.Fprintf(out, "Imported %s from %s\n", plural(int64(r.Imported), "post"), name)
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Ignore cached validators and refetch")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the feed over HTTP",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			if a.Config.Log.File == "" {
				level := debuglog.ParseLogLevel(a.Config.Log.Level)
				if level == debuglog.LevelOff {
					level = debuglog.LevelInfo
				}
				debuglog.SetOutput(level, cmd.ErrOrStderr())
			}
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			gin.SetMode(gin.ReleaseMode)

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", addr, err)
			}
			srv := &http.Server{
				Handler:           api.NewServer(a).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve(ln) }()

			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", ln.Addr())
			debuglog.Infof("serve: listening on %s", ln.Addr())

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}

			debuglog.Infof("serve: shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutting down: %w", err)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store and cache statistics",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			if err := a.Refresh(cmd.Context()); err != nil {
				return err
			}
			state := a.Loader.State()
			indexed, err := a.Index.DocCount()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Posts:        %d\n", len(state.Posts))
			fmt.Fprintf(out, "Stories:      %d\n", len(state.Stories))
			fmt.Fprintf(out, "Indexed:      %d\n", indexed)
			fmt.Fprintf(out, "User fetches: %d\n", a.Users.Fetches())

			if a.DB == nil {
				return nil
			}
			sources, err := a.DB.GetAllSources()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Sources:      %d\n", len(sources))
			for _, s := range sources {
				last := "never"
				if !s.LastFetched.IsZero() {
					last = s.LastFetched.Format(time.RFC3339)
				}
				fmt.Fprintf(out, "  %s  %d imported, last fetched %s\n", s.URL, s.Imported, last)
			}
			return nil
		}),
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	var (
		username string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token USER",
		Short: "Sign an identity token for USER",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			defer debuglog.Close()
			if cfg.Identity.Secret == "" {
				return errors.New("identity.secret is not set")
			}
			tok, err := identity.Sign(args[0], username, cfg.Identity.Secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (0 never expires)")
	return cmd
}
