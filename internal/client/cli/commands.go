package cli

import (
	"context"
	"io"

	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/spf13/cobra"
)

// Factory builds an App writing to out.
type Factory func(ctx context.Context, out io.Writer) (*App, error)

// NewRootCommand returns the silosync command tree. Every command except
// run opens the app, does one thing and closes it again.
func NewRootCommand(newApp Factory) *cobra.Command {
	root := &cobra.Command{
		Use:           "silosync",
		Short:         "Offline-first client for the grain logistics API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	oneShot := func(fn func(ctx context.Context, a *App, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Open(ctx, false); err != nil {
				return err
			}
			return fn(ctx, a, args)
		}
	}

	kinds := make([]string, 0, len(models.AllKinds()))
	for _, k := range models.AllKinds() {
		kinds = append(kinds, string(k))
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show connectivity, pending actions and cache ages",
			Args:  cobra.NoArgs,
			RunE: oneShot(func(ctx context.Context, a *App, _ []string) error {
				return a.Status(ctx)
			}),
		},
		&cobra.Command{
			Use:   "refresh",
			Short: "Reload every entity kind from the server",
			Args:  cobra.NoArgs,
			RunE: oneShot(func(ctx context.Context, a *App, _ []string) error {
				return a.Refresh(ctx)
			}),
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Replay pending actions against the server",
			Args:  cobra.NoArgs,
			RunE: oneShot(func(ctx context.Context, a *App, _ []string) error {
				return a.Sync(ctx)
			}),
		},
		newQueueCommand(oneShot),
		&cobra.Command{
			Use:   "deadletters",
			Short: "List actions that exhausted their retries",
			Args:  cobra.NoArgs,
			RunE: oneShot(func(ctx context.Context, a *App, _ []string) error {
				return a.DeadLetters(ctx)
			}),
		},
		&cobra.Command{
			Use:       "list <kind>",
			Short:     "List records of a kind",
			Args:      cobra.ExactArgs(1),
			ValidArgs: kinds,
			RunE: oneShot(func(ctx context.Context, a *App, args []string) error {
				return a.List(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "get <kind> <id>",
			Short: "Show one record",
			Args:  cobra.ExactArgs(2),
			RunE: oneShot(func(ctx context.Context, a *App, args []string) error {
				return a.Get(ctx, args[0], args[1])
			}),
		},
		&cobra.Command{
			Use:   "create <kind> name=value...",
			Short: "Create a record, queueing it when offline",
			Args:  cobra.MinimumNArgs(1),
			RunE: oneShot(func(ctx context.Context, a *App, args []string) error {
				return a.Create(ctx, args[0], args[1:])
			}),
		},
		&cobra.Command{
			Use:   "update <kind> <id> name=value...",
			Short: "Change fields of a record, queueing it when offline",
			Args:  cobra.MinimumNArgs(3),
			RunE: oneShot(func(ctx context.Context, a *App, args []string) error {
				return a.Update(ctx, args[0], args[1], args[2:])
			}),
		},
		&cobra.Command{
			Use:   "delete <kind> <id>",
			Short: "Delete a record, queueing it when offline",
			Args:  cobra.ExactArgs(2),
			RunE: oneShot(func(ctx context.Context, a *App, args []string) error {
				return a.Delete(ctx, args[0], args[1])
			}),
		},
		newRunCommand(newApp),
	)
	return root
}

func newQueueCommand(oneShot func(func(context.Context, *App, []string) error) func(*cobra.Command, []string) error) *cobra.Command {
	list := oneShot(func(ctx context.Context, a *App, _ []string) error {
		return a.Queue(ctx)
	})
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the pending-action queue",
		Args:  cobra.NoArgs,
		RunE:  list,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List pending actions in replay order",
			Args:  cobra.NoArgs,
			RunE:  list,
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Drop every pending action",
			Args:  cobra.NoArgs,
			RunE: oneShot(func(ctx context.Context, a *App, _ []string) error {
				return a.ClearQueue(ctx)
			}),
		},
	)
	return cmd
}

func newRunCommand(newApp Factory) *cobra.Command {
	var noPush bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Interactive shell with background sync and server push",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return a.Run(ctx, cmd.InOrStdin(), !noPush)
		},
	}
	cmd.Flags().BoolVar(&noPush, "no-push", false, "do not subscribe to server push")
	return cmd
}
