// Command aiomemq runs the in-memory publish/subscribe broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/life-stream-dev/aiomemq/internal/broker"
	"github.com/life-stream-dev/aiomemq/internal/config"
	"github.com/life-stream-dev/aiomemq/internal/event"
	"github.com/life-stream-dev/aiomemq/internal/logger"
	"github.com/life-stream-dev/aiomemq/internal/server"
)

func main() {
	cmd := &cli.Command{
		Name:      "aiomemq",
		Usage:     "in-memory publish/subscribe message broker",
		ArgsUsage: "[port] [cache_size]",
		Action:    run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, config.ErrUsage) {
			fmt.Fprintln(os.Stderr, config.Usage)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.New(cmd.Args().Slice())
	if err != nil {
		return err
	}

	shutdown := logger.Init()
	logger.Debug("aiomemq initializing...")

	cleaner := event.NewCleaner()
	runCtx := cleaner.Init(shutdown)

	b := broker.New(cfg.CacheSize)
	acceptor := server.New(b)

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return acceptor.Serve(gCtx, cfg.Port)
	})
	g.Go(func() error {
		select {
		case <-cleaner.Done():
		case <-gCtx.Done():
			// gCtx also ends when the acceptor fails; only a signal
			// (runCtx done) has a cleanup run to wait for.
			if runCtx.Err() != nil {
				<-cleaner.Done()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.FatalF("aiomemq exiting: %v", err)
		return err
	}
	return nil
}
