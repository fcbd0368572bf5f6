package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Clark-Hu/movie-favorites/internal/domain"
)

type outputOptions struct {
	JSON bool
}

func newPopularCommand(open Opener) *cobra.Command {
	var (
		page int
		out  outputOptions
	)
	cmd := &cobra.Command{
		Use:   "popular",
		Short: "List popular movies from the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *App) error {
				movies, err := app.Catalog.FetchPopular(ctx, page)
				if err != nil {
					return describe(err)
				}
				if out.JSON {
					return writeJSON(cmd.OutOrStdout(), movies)
				}
				return writeMovies(cmd.OutOrStdout(), movies)
			})
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Catalog page to fetch")
	cmd.Flags().BoolVar(&out.JSON, "json", false, "Output results as JSON")
	return cmd
}

func newListCommand(open Opener) *cobra.Command {
	var out outputOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your favorites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *App) error {
				items, err := app.Favorites.Snapshot(ctx)
				if err != nil {
					return describe(err)
				}
				if out.JSON {
					return writeJSON(cmd.OutOrStdout(), items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No favorites yet.")
					return nil
				}
				movies := make([]domain.Movie, 0, len(items))
				for _, it := range items {
					movies = append(movies, it.Movie())
				}
				return writeMovies(cmd.OutOrStdout(), movies)
			})
		},
	}
	cmd.Flags().BoolVar(&out.JSON, "json", false, "Output results as JSON")
	return cmd
}

func newAddCommand(open Opener) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "add MOVIE_ID",
		Short: "Add a movie from the catalog to your favorites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd, open, func(ctx context.Context, app *App) error {
				movies, err := app.Catalog.FetchPopular(ctx, page)
				if err != nil {
					return describe(err)
				}
				for _, m := range movies {
					if m.ID != id {
						continue
					}
					if err := app.Favorites.Add(ctx, domain.FavoriteFromMovie(m)); err != nil {
						return describe(err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) to favorites.\n", m.Title, m.Year)
					return nil
				}
				return fmt.Errorf("movie %s is not on catalog page %d", id, page)
			})
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Catalog page the movie is listed on")
	return cmd
}

func newRemoveCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "remove MOVIE_ID",
		Short: "Remove a movie from your favorites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *App) error {
				if err := app.Favorites.Remove(ctx, args[0]); err != nil {
					return describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from favorites.\n", args[0])
				return nil
			})
		},
	}
}

func newWatchCommand(open Opener) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch [MOVIE_ID]",
		Short: "Print favorites, or the membership of one movie, every time they change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, app *App) error {
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				w := cmd.OutOrStdout()

				if len(args) == 1 {
					feed, err := app.Favorites.IsFavorite(ctx, args[0])
					if err != nil {
						return describe(err)
					}
					defer feed.Close()
					return drain(ctx, feed.C(), feed.Err, count, func(on bool) {
						fmt.Fprintf(w, "%s favorite=%t\n", args[0], on)
					})
				}

				feed, err := app.Favorites.All(ctx)
				if err != nil {
					return describe(err)
				}
				defer feed.Close()
				return drain(ctx, feed.C(), feed.Err, count, func(items []domain.FavoriteRecord) {
					fmt.Fprintf(w, "%d favorites\n", len(items))
					for _, it := range items {
						fmt.Fprintf(w, "  %s\t%s\n", it.ID, it.Title)
					}
				})
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Stop after this many updates (0 runs until interrupted)")
	return cmd
}

// drain prints values until count is reached, ctx ends or the feed closes.
func drain[T any](ctx context.Context, values <-chan T, feedErr func() error, count int, show func(T)) error {
	seen := 0
	for {
		select {
		case v, ok := <-values:
			if !ok {
				return describe(feedErr())
			}
			show(v)
			seen++
			if count > 0 && seen >= count {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// describe turns faults into the message shown to the user.
func describe(err error) error {
	if err == nil {
		return nil
	}
	var upstream *domain.UpstreamFault
	if errors.As(err, &upstream) {
		return fmt.Errorf("%s (%w)", upstream.Message(), err)
	}
	var storage *domain.StorageFault
	if errors.As(err, &storage) {
		return fmt.Errorf("could not access favorites storage: %w", err)
	}
	return err
}

func writeMovies(w io.Writer, movies []domain.Movie) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tYEAR\tRATING")
	for _, m := range movies {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\n", m.ID, m.Title, m.Year, m.Rating)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
