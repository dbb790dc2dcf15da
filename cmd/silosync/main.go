package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/silosync/internal/client/cli"
	"github.com/dmitrijs2005/silosync/internal/client/config"
	"github.com/dmitrijs2005/silosync/internal/flagx"
	"github.com/dmitrijs2005/silosync/internal/logging"
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
	logger := logging.NewFileLogger(cfg.LogFile, cfg.LogLevel, cfg.LogMaxSizeMB)

	root := cli.NewRootCommand(func(ctx context.Context, out io.Writer) (*cli.App, error) {
		return cli.NewApp(ctx, cfg, logger, out)
	})
	root.SetArgs(flagx.RemoveArgs(args, config.FlagNames))

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
