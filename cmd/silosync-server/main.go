package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/silosync/internal/flagx"
	"github.com/dmitrijs2005/silosync/internal/logging"
	"github.com/dmitrijs2005/silosync/internal/server"
	"github.com/dmitrijs2005/silosync/internal/server/auth"
	"github.com/dmitrijs2005/silosync/internal/server/config"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	args := os.Args[1:]
	cfg, err := config.LoadConfig(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	root := newRootCommand(cfg)
	root.SetArgs(flagx.RemoveArgs(args, config.FlagNames))
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "silosync-server",
		Short:         "Reference REST server for silosync clients",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and push events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.NewFileLogger(cfg.LogFile, cfg.LogLevel, cfg.LogMaxSizeMB)
			app, err := server.NewApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
	root.AddCommand(serve)
	root.RunE = serve.RunE

	root.AddCommand(&cobra.Command{
		Use:   "token <user>",
		Short: "Mint a session token for the session cookie",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := auth.GenerateToken(args[0], []byte(cfg.SecretKey), cfg.SessionTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	})
	return root
}
