package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pders01/synfeed/internal/app"
	"github.com/pders01/synfeed/internal/feed"
	"github.com/pders01/synfeed/internal/interaction"
	"github.com/pders01/synfeed/internal/model"
	"github.com/pders01/synfeed/internal/seed"
	"github.com/pders01/synfeed/internal/tui"
)

func (c *cli) feedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feed",
		Short: "Print the feed",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			ctx := cmd.Context()
			if err := a.Refresh(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printed := 0
			for _, it := range a.Presenter.Items(ctx, a.Loader.State()) {
				if post, ok := it.(feed.PostItem); ok {
					printPost(out, post)
					printed++
				}
			}
			if printed == 0 {
				fmt.Fprintln(out, "No posts yet")
			}
			return nil
		}),
	}
}

func printPost(w io.Writer, it feed.PostItem) {
	header := it.Author.DisplayName()
	if badge := it.Author.Badge(); badge != "" {
		header += " [" + badge + "]"
	}
	if it.Age != "" {
		header += " · " + it.Age
	}
	fmt.Fprintf(w, "%s  %s\n", it.Post.ID, header)
	for _, line := range strings.Split(it.Post.Text, "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}
	if it.Post.Type == model.PostTypeImage && it.Post.ImageURL != "" {
		fmt.Fprintf(w, "    [image] %s\n", it.Post.ImageURL)
	}
	fmt.Fprintf(w, "    %s\n\n", countsLine(it))
}

func countsLine(it feed.PostItem) string {
	like := "♡"
	if it.Liked {
		like = "♥"
	}
	if !it.Post.Flags.HideLikeCount {
		like += " " + it.Likes
	}
	parts := []string{like}
	if !it.Post.Flags.DisableComments {
		comments := "✎"
		if !it.Post.Flags.HideCommentsCount {
			comments += " " + it.Comments
		}
		parts = append(parts, comments)
	}
	if it.Favorited {
		parts = append(parts, "★")
	}
	if it.CountsErr != nil {
		parts = append(parts, "(counts unavailable)")
	}
	return strings.Join(parts, "  ")
}

func (c *cli) storiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stories",
		Short: "List the story strip",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			ctx := cmd.Context()
			if err := a.Loader.LoadStories(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range a.Presenter.StoryStrip(ctx, a.Loader.State().Stories).Stories {
				if s.Story.Placeholder {
					fmt.Fprintf(out, "+ %s\n", s.Label)
					continue
				}
				fmt.Fprintf(out, "%s  %s\n", s.Story.ID, s.Label)
			}
			return nil
		}),
	}
}

func (c *cli) toggleCmd(kind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   kind + " POST",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			var (
				t   interaction.Toggle
				err error
			)
			if kind == "like" {
				t, err = a.ToggleLike(cmd.Context(), args[0])
			} else {
				t, err = a.ToggleFavorite(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeToggle(kind, t))
			return nil
		}),
	}
}

func describeToggle(kind string, t interaction.Toggle) string {
	switch {
	case kind == "like" && t.Active:
		return fmt.Sprintf("Liked %s (%s)", t.PostID, plural(t.Count, "like"))
	case kind == "like":
		return fmt.Sprintf("Unliked %s (%s)", t.PostID, plural(t.Count, "like"))
	case t.Active:
		return fmt.Sprintf("Saved %s to favorites", t.PostID)
	default:
		return fmt.Sprintf("Removed %s from favorites", t.PostID)
	}
}

func plural(n int64, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func (c *cli) postCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "post TEXT",
		Short: "Publish a text post",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			p, err := a.Composer.Publish(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Posted %s\n", p.ID)
			return nil
		}),
	}
}

func (c *cli) searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the loaded posts",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			if err := a.Refresh(cmd.Context()); err != nil {
				return err
			}
			viewer, _ := a.Viewer.CurrentUserID()
			results, err := a.Index.Search(strings.Join(args, " "), viewer, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No matches")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(out, "%s  %s: %s\n", r.PostID, r.AuthorName, r.Snippet)
			}
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	return cmd
}

func (c *cli) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Write a TOML fixture into the store",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			f, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}
			sum, err := a.Seeder.Apply(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s\n", sum)
			return nil
		}),
	}
}

func (c *cli) tuiCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Browse the feed interactively",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			if !quiet {
				tui.ShowBanner(cmd.OutOrStdout(), Version, a.Config.UI.Colors)
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			m := tui.New(ctx, a)
			_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			cancel()
			m.Wait()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Skip startup banner")
	return cmd
}
