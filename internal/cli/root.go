// Package cli implements the favorites command-line client.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Clark-Hu/movie-favorites/internal/catalog"
	"github.com/Clark-Hu/movie-favorites/internal/favorites"
)

// App holds the collaborators the commands work with.
type App struct {
	Favorites *favorites.Store
	Catalog   catalog.Client
}

// Opener builds the App for one command run and returns a func that
// releases it. It is called lazily so --help never touches the database.
type Opener func(ctx context.Context) (*App, func() error, error)

// NewRootCommand creates the root command.
func NewRootCommand(version string, open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "favorites",
		Short:         "Browse popular movies and manage your favorites",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newPopularCommand(open),
		newListCommand(open),
		newAddCommand(open),
		newRemoveCommand(open),
		newWatchCommand(open),
	)
	return cmd
}

// withApp opens the App, runs fn and always releases the App afterwards.
func withApp(cmd *cobra.Command, open Opener, fn func(ctx context.Context, app *App) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, release, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := release(); err == nil {
			err = cerr
		}
	}()
	return fn(ctx, app)
}
